package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

var httpClient = &http.Client{Timeout: 60 * time.Second}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "config":
		return handleConfig(args[2:], stdout, stderr)
	case "setup":
		return handleSetup(args[2:], stdout, stderr)
	case "projects":
		return handleProjects(args[2:], stdout, stderr)
	case "modules":
		return handleModules("modules", args[2:], stdout, stderr)
	case "stacks":
		return handleModules("stacks", args[2:], stdout, stderr)
	case "policies":
		return handlePolicies(args[2:], stdout, stderr)
	case "deployments":
		return handleDeployments(args[2:], stdout, stderr)
	case "journal":
		return handleJournal(args[2:], stdout, stderr)
	case "pr":
		return handlePR(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

// gateway talks to a running infraweave-gateway.
type gateway struct {
	addr   string
	token  string
	json   bool
	logger *slog.Logger
}

type commonFlags struct {
	addr    *string
	token   *string
	jsonOut *bool
	verbose *bool
}

func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, &commonFlags{
		addr:    fs.String("addr", envOrDefault("INFRAWEAVE_GATEWAY_ADDR", defaultAddr), "gateway address"),
		token:   fs.String("token", os.Getenv("INFRAWEAVE_PANEL_TOKEN"), "bearer token"),
		jsonOut: fs.Bool("json", false, "print raw JSON response"),
		verbose: fs.BoolP("verbose", "v", false, "log requests to stderr"),
	}
}

func (c *commonFlags) gateway(stderr io.Writer) *gateway {
	level := slog.LevelWarn
	if *c.verbose {
		level = slog.LevelDebug
	}
	return &gateway{
		addr:   strings.TrimRight(*c.addr, "/"),
		token:  *c.token,
		json:   *c.jsonOut,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	}
}

func (g *gateway) do(method string, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, g.addr+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	g.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", resp.Header.Get("X-Request-Id"), "duration", time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// call performs the request and handles the shared failure and --json paths.
// It returns the body to render and ok=false with an exit code otherwise.
func (g *gateway) call(method string, path string, body any, stdout io.Writer, stderr io.Writer) ([]byte, int, bool) {
	respBody, status, err := g.do(method, path, body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return nil, 1, false
	}
	if status < 200 || status > 299 {
		if g.json {
			_, _ = stdout.Write(respBody)
		}
		fmt.Fprintf(stderr, "request failed (%d): %s\n", status, errorMessage(respBody))
		return nil, 1, false
	}
	if g.json {
		_, _ = stdout.Write(respBody)
		return nil, 0, false
	}
	return respBody, 0, true
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func decode(body []byte, out any, stderr io.Writer) bool {
	if err := json.Unmarshal(body, out); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return false
	}
	return true
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Infraweave panel CLI

Usage:
  infraweave config [--addr URL] [--token TOKEN] [--json]
  infraweave setup validate <url>
  infraweave setup document [url]
  infraweave setup create <url>
  infraweave projects
  infraweave modules [--grouped]
  infraweave stacks [--grouped]
  infraweave policies <env>...
  infraweave deployments <project> <region> [--module NAME]
  infraweave journal [run_id] [--limit N]
  infraweave pr github|gitlab --repo R --source B --target B --title T --file PATH --content-file FILE --message M

Every command accepts --addr, --token, --json and --verbose.
`)
}
