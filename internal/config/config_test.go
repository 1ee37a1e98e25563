package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxQueueSize != 64 || cfg.WorkerThreads != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxQueueSize != 64 {
		t.Fatalf("expected default on missing file, got %+v", cfg)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"max_queue_size": 128, "worker_threads": 4}`), 0644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxQueueSize != 128 || cfg.WorkerThreads != 4 {
		t.Fatalf("unexpected parsed config: %+v", cfg)
	}
}

func TestMaskedCopy_MasksAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Backend.APIKey = "secret-value"

	masked := cfg.MaskedCopy()
	if masked.Backend.APIKey != secretMask {
		t.Fatalf("expected masked API key, got %q", masked.Backend.APIKey)
	}
	if cfg.Backend.APIKey != "secret-value" {
		t.Fatal("expected MaskedCopy to not mutate the original")
	}
}

func TestStripSecrets_ZeroesAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Backend.APIKey = "secret-value"
	cfg.StripSecrets()
	if cfg.Backend.APIKey != "" {
		t.Fatalf("expected API key stripped, got %q", cfg.Backend.APIKey)
	}
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	cfg := Default()
	snap := cfg.Snapshot()
	cfg.replace(&Config{MaxQueueSize: 999})
	if snap.MaxQueueSize == 999 {
		t.Fatal("expected snapshot to be unaffected by a later replace")
	}
}
