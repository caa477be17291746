// Package main provides a CI-friendly smoke test for the LiveSupport auth API.
//
// It validates:
//   - register returns an id and a duplicate returns 409
//   - login returns a bearer token and a hardened refresh cookie
//   - /api/me accepts the bearer token
//   - refresh rotates the cookie and the old cookie stops working
//   - logout clears the cookie and is idempotent
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const cookieName = "refresh_token"

type smokeClient struct {
	base    string
	http    *http.Client
	verbose bool
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		email    = flag.String("email", "", "Email to register (default: unique per run)")
		password = flag.String("password", "smoke-test passphrase 42", "Password to register")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *email == "" {
		*email = fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{Timeout: *timeout},
		verbose: *verbose,
	}

	creds := map[string]string{"email": *email, "password": *password}
	reg := map[string]string{"name": "Smoke Test", "email": *email, "password": *password}

	resp, body := c.post("/api/auth/register", reg, nil)
	expectStatus("register", resp, body, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	mustDecode("register", body, &created)
	if created.ID == "" {
		fatalf("register: missing id")
	}

	resp, body = c.post("/api/auth/register", reg, nil)
	expectStatus("register duplicate", resp, body, http.StatusConflict)

	resp, body = c.post("/api/auth/login", creds, nil)
	expectStatus("login", resp, body, http.StatusOK)
	tok := mustToken("login", body)
	first := mustRefreshCookie("login", resp)

	resp, body = c.get("/api/me", tok.AccessToken)
	expectStatus("me", resp, body, http.StatusOK)

	resp, body = c.post("/api/auth/refresh", nil, first)
	expectStatus("refresh", resp, body, http.StatusOK)
	mustToken("refresh", body)
	second := mustRefreshCookie("refresh", resp)
	if second.Value == first.Value {
		fatalf("refresh: cookie was not rotated")
	}

	resp, body = c.post("/api/auth/refresh", nil, first)
	expectStatus("refresh with rotated cookie", resp, body, http.StatusUnauthorized)

	for i := range 2 {
		resp, body = c.post("/api/auth/logout", nil, second)
		expectStatus(fmt.Sprintf("logout #%d", i+1), resp, body, http.StatusOK)
	}

	resp, body = c.post("/api/auth/refresh", nil, second)
	expectStatus("refresh after logout", resp, body, http.StatusUnauthorized)

	fmt.Printf("OK: user_id=%s email=%s\n", created.ID, *email)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func (c *smokeClient) post(path string, body any, cookie *http.Cookie) (*http.Response, []byte) {
	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("%s: marshal: %v", path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, r)
	if err != nil {
		fatalf("%s: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Set by hand: a jar would not replay a Secure cookie over plain http.
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return c.do(req)
}

func (c *smokeClient) get(path, bearer string) (*http.Response, []byte) {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		fatalf("%s: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return c.do(req)
}

func (c *smokeClient) do(req *http.Request) (*http.Response, []byte) {
	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", req.Method, req.URL.Path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, body
}

func expectStatus(step string, resp *http.Response, body []byte, want int) {
	if resp.StatusCode != want {
		fatalf("%s: status=%d want=%d body=%s", step, resp.StatusCode, want, strings.TrimSpace(string(body)))
	}
}

func mustDecode(step string, body []byte, dst any) {
	if err := json.Unmarshal(body, dst); err != nil {
		fatalf("%s: decode: %v", step, err)
	}
}

func mustToken(step string, body []byte) tokenBody {
	var t tokenBody
	mustDecode(step, body, &t)
	if t.AccessToken == "" || t.TokenType != "Bearer" || t.ExpiresIn <= 0 {
		fatalf("%s: bad token body: %s", step, string(body))
	}
	return t
}

func mustRefreshCookie(step string, resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name != cookieName {
			continue
		}
		if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteStrictMode {
			fatalf("%s: refresh cookie not hardened: httponly=%t secure=%t samesite=%v",
				step, ck.HttpOnly, ck.Secure, ck.SameSite)
		}
		if ck.Value == "" {
			fatalf("%s: empty refresh cookie", step)
		}
		return ck
	}
	fatalf("%s: no %s cookie", step, cookieName)
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
