package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ledger/internal/config"
)

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("LEDGER_CLI_TEST_VALUE", "")
	os.Unsetenv("LEDGER_CLI_TEST_VALUE")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LEDGER_CLI_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	LoadEnvFile(path)
	if got := os.Getenv("LEDGER_CLI_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}

	// Missing files are ignored.
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	t.Setenv("LEDGER_CLI_TEST_VALUE", "from-env")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LEDGER_CLI_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	LoadEnvFile(path)
	if got := os.Getenv("LEDGER_CLI_TEST_VALUE"); got != "from-env" {
		t.Fatalf("process env must win, got %q", got)
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "json")
	if logger == nil || logger.Component() != "app" {
		t.Fatalf("unexpected logger %+v", logger)
	}
	if !logger.Enabled(context.Background(), -4) {
		t.Fatal("debug level should be enabled")
	}
}

func TestInitBackendMemory(t *testing.T) {
	cfg := &config.Config{DataBackend: "memory", MemoryDataDir: t.TempDir()}
	res := InitBackend(context.Background(), SetupLogger("error", "text").Logger, cfg)
	defer res.Close()
	if res.Store == nil {
		t.Fatal("expected a store")
	}
}
