package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, `
raknet:
  listen_addr: "0.0.0.0:19133"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RakNet.ListenAddr != "0.0.0.0:19133" {
		t.Fatalf("expected configured listen addr to be kept, got %q", cfg.RakNet.ListenAddr)
	}
	if cfg.RakNet.MTU != Default().RakNet.MTU {
		t.Fatalf("expected default MTU, got %d", cfg.RakNet.MTU)
	}
	if cfg.Bedrock.MaxChunkRadius != Default().Bedrock.MaxChunkRadius {
		t.Fatalf("expected default max chunk radius, got %d", cfg.Bedrock.MaxChunkRadius)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "raknet: [this is not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestSessionTimeoutDuration(t *testing.T) {
	cfg := Default()
	if cfg.RakNet.SessionTimeoutDuration().Seconds() != float64(cfg.RakNet.SessionTimeout) {
		t.Fatalf("unexpected duration conversion: %v", cfg.RakNet.SessionTimeoutDuration())
	}
}
