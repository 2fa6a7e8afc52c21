package command

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/geoattend-go/internal/cli/config"
)

// mockServer is a test server routing by "METHOD /path" prefix.
type mockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []*http.Request
	bodies   []string
}

func newMockServer() *mockServer {
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		m.mu.Lock()
		m.requests = append(m.requests, r)
		m.bodies = append(m.bodies, body.String())
		var match http.HandlerFunc
		longest := -1
		for pattern, h := range m.handlers {
			method, path, _ := strings.Cut(pattern, " ")
			if r.Method == method && strings.HasPrefix(r.URL.Path, path) && len(path) > longest {
				match, longest = h, len(path)
			}
		}
		m.mu.Unlock()

		if match == nil {
			errorResponse(w, http.StatusNotFound, "GA-ARG-4040", "not found")
			return
		}
		r.Body = nopBody{bytes.NewReader(body.Bytes())}
		match(w, r)
	}))
	return m
}

type nopBody struct{ *bytes.Reader }

func (nopBody) Close() error { return nil }

func (m *mockServer) handle(pattern string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = h
}

func (m *mockServer) lastRequest() (*http.Request, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil, ""
	}
	return m.requests[len(m.requests)-1], m.bodies[len(m.bodies)-1]
}

func (m *mockServer) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// envelope writes a success envelope around data.
func envelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"code":       "OK",
		"message":    "Success",
		"request_id": "req-test",
		"timestamp":  time.Now().UnixMilli(),
		"data":       data,
	})
}

func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       code,
		"message":    message,
		"request_id": "req-test",
	})
}

// testEnv holds a CLI context and its captured output.
type testEnv struct {
	ctx    *cli.Context
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// makeTestContext builds a context for cmd's action with the global flags,
// cmd's own flags, and args. server may be nil for local commands.
func makeTestContext(server *mockServer, cmd *cli.Command, args ...string) *testEnv {
	return makeTestContextWithConfig(server, nil, cmd, args...)
}

func makeTestContextWithConfig(server *mockServer, cfg *cliconfig.CLIConfig, cmd *cli.Command, args ...string) *testEnv {
	env := &testEnv{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	app := &cli.App{
		Name:      "test",
		Flags:     globalFlags(),
		Writer:    env.stdout,
		ErrWriter: env.stderr,
		Reader:    strings.NewReader(""),
		Metadata:  map[string]any{},
	}
	if cfg != nil {
		app.Metadata[metaConfig] = cfg
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	seen := map[string]bool{}
	for _, f := range append(globalFlags(), cmd.Flags...) {
		if seen[f.Names()[0]] {
			continue
		}
		seen[f.Names()[0]] = true
		if err := f.Apply(set); err != nil {
			panic(err)
		}
	}

	var full []string
	if server != nil {
		full = append(full, "--server", server.URL)
	}
	full = append(full, args...)
	if err := set.Parse(full); err != nil {
		panic(fmt.Sprintf("parse %v: %v", full, err))
	}

	env.ctx = cli.NewContext(app, set, nil)
	env.ctx.Command = cmd
	return env
}

// findSub returns the named subcommand of cmd.
func findSub(cmd *cli.Command, name string) *cli.Command {
	for _, sub := range cmd.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	panic("subcommand not found: " + name)
}
