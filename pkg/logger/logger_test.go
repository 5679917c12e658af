package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesRotatedLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	cfg := DefaultConfig()
	cfg.Path = path
	cfg.Console = false

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("hello from test")
	log.Sync()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestResolveLevelFallsBackToInfo(t *testing.T) {
	if got := resolveLevel("not-a-real-level"); got != levelMap["info"] {
		t.Fatalf("expected fallback to info level, got %v", got)
	}
	if got := resolveLevel("debug"); got != levelMap["debug"] {
		t.Fatalf("expected debug level, got %v", got)
	}
}

func TestNopDiscardsWithoutError(t *testing.T) {
	log := Nop()
	log.Info("should be discarded")
}
