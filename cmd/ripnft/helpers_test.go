package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// metadataDocs are served by newMetadataServer. Item 3 is missing.
var metadataDocs = map[string]string{
	"/meta/0.json": `{"name":"#0","attributes":[{"trait_type":"Hat","value":"Red"}]}`,
	"/meta/1.json": `{"name":"#1","attributes":[{"trait_type":"Hat","value":"Red"}]}`,
	"/meta/2.json": `{"name":"#2","attributes":[{"trait_type":"Hat","value":"Gold"}]}`,
}

func newMetadataServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := metadataDocs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc)) //nolint:errcheck // test fixture
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".ripnft")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr lockedBuffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// csvRanks maps item index to rank in a CSV report.
func csvRanks(t *testing.T, data string) map[string]string {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(data), "\n")
	header := strings.Split(lines[0], ",")
	rankCol := -1
	for i, h := range header {
		if h == "rank" {
			rankCol = i
		}
	}
	if rankCol < 0 {
		t.Fatalf("no rank column in header %q", lines[0])
	}

	ranks := make(map[string]string)
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		ranks[fields[0]] = fields[rankCol]
	}
	return ranks
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
