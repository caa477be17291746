// Command livesupport runs the LiveSupport auth server.
//
//	livesupport [serve]
//	livesupport migrate [up | down [N] | version]
package main

import (
	"fmt"
	"log"
	"os"

	"livesupport/cmd/internal/app"
)

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = app.Run()
	case "migrate":
		err = app.Migrate(args)
	default:
		err = fmt.Errorf("unknown command %q (want serve or migrate)", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}
