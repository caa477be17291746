package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"livesupport/cmd/internal/migrations"
)

// Run is the serve entrypoint used by cmd/livesupport.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}

// Migrate runs a schema command against LIVESUPPORT_DATABASE_URL.
// args are "up", "down [N]" or "version".
func Migrate(args []string) error {
	cfg := LoadConfig()
	log := NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		return errors.New("migrate: LIVESUPPORT_DATABASE_URL is not set")
	}
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg.AutoMigrate = false
	pool, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch cmd {
	case "up":
		return migrations.Up(pool, log)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("migrate: invalid step count %q", args[1])
			}
			steps = n
		}
		return migrations.Down(pool, steps, log)
	case "version":
		v, dirty, ok, err := migrations.Version(pool)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("migrate: unknown command %q (want up, down or version)", cmd)
	}
}
