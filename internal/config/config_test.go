package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
addr = "0.0.0.0:7700"
token_ttl_seconds = 120
mdns_enabled = true
host_name = "Office Mac"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != "0.0.0.0:7700" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.TokenTTLSeconds != 120 {
		t.Errorf("TokenTTLSeconds = %d", cfg.TokenTTLSeconds)
	}
	if !cfg.MdnsEnabled {
		t.Error("expected MdnsEnabled")
	}
	if cfg.HostName != "Office Mac" {
		t.Errorf("HostName = %q", cfg.HostName)
	}
}

func TestLoadExplicitMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("addr = [unclosed"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "0.0.0.0:7600" {
		t.Errorf("default Addr = %q", cfg.Addr)
	}
	if cfg.TokenTTLSeconds != 60 {
		t.Errorf("default TokenTTLSeconds = %d", cfg.TokenTTLSeconds)
	}
}

func TestWriteDefaultDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	original := []byte(`addr = "127.0.0.1:9999"` + "\n")
	if err := os.WriteFile(path, original, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != string(original) {
		t.Error("WriteDefault overwrote an existing file")
	}
}
