package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/ripnft/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	flag := cmd.Flags().Lookup("output")
	if flag == nil {
		t.Fatal("expected output flag")
	}
	if flag.DefValue != config.DefaultConfigFile {
		t.Errorf("expected default %q, got %q", config.DefaultConfigFile, flag.DefValue)
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("expected force flag")
	}
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", ".ripnft")
		stdout, _, err := execute(t, "init", "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, path) {
			t.Errorf("expected output to mention %s, got %q", path, stdout)
		}

		f, err := config.LoadConfigFile(path)
		if err != nil {
			t.Fatalf("expected template to parse, got %v", err)
		}
		if f.Defaults.Concurrency != config.DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", config.DefaultConcurrency, f.Defaults.Concurrency)
		}
		if f.Defaults.Timeout != config.DefaultBatchTimeout {
			t.Errorf("expected timeout %v, got %v", config.DefaultBatchTimeout, f.Defaults.Timeout)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "defaults: {}\n")
		if _, _, err := execute(t, "init", "-o", path); err == nil {
			t.Error("expected error for existing file")
		}
		if _, _, err := execute(t, "init", "-o", path, "-f"); err != nil {
			t.Errorf("expected overwrite with -f, got %v", err)
		}
	})
}
