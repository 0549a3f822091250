package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/config"
	"github.com/kozaktomas/face-checkin/internal/database/memory"
)

func TestOpenStore_Fallback(t *testing.T) {
	cfg := &config.Config{}

	if _, err := openStore(context.Background(), cfg, false, zerolog.Nop()); !errors.Is(err, errNoBackend) {
		t.Errorf("expected errNoBackend, got %v", err)
	}

	store, err := openStore(context.Background(), cfg, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*memory.Store); !ok {
		t.Errorf("expected the in-memory store, got %T", store)
	}
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	t.Setenv(config.FileEnv, "")
	t.Setenv("LOG_LEVEL", "info")
	logLevel = "debug"
	defer func() { logLevel = "" }()

	cfg, _, err := loadConfig(os.Stderr)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected --log-level to win, got %q", cfg.Log.Level)
	}

	logLevel = "loud"
	if _, _, err := loadConfig(os.Stderr); err == nil {
		t.Error("expected an invalid level to be rejected")
	}
}

func TestReadImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := readImageFile(path)
	if err != nil || len(data) != 3 {
		t.Errorf("readImageFile = %v, %v", data, err)
	}
	if _, err := readImageFile(path + ".missing"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
