package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log defaults = %+v", cfg.Log)
	}
	if cfg.Protocol.MaxRetries != 3 {
		t.Fatalf("max retries = %d", cfg.Protocol.MaxRetries)
	}
	if cfg.ToT.Width != 3 || cfg.ToT.Depth != 4 || cfg.ToT.ScoreThreshold != 5.0 {
		t.Fatalf("tot defaults = %+v", cfg.ToT)
	}
	if cfg.Orchestrator.ActionTimeout != 30*time.Second {
		t.Fatalf("action timeout = %v", cfg.Orchestrator.ActionTimeout)
	}
	if cfg.Curator.ContextBudget != 16*1024 {
		t.Fatalf("context budget = %d", cfg.Curator.ContextBudget)
	}
	if len(cfg.MCP.Servers) != 0 {
		t.Fatalf("mcp servers = %+v", cfg.MCP.Servers)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telos.yaml")
	data := []byte(`
log:
  level: debug
  format: json
tot:
  width: 5
  depth: 2
protocol:
  max_retries: 2
knowledge:
  dir: /var/lib/telos/knowledge
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.ToT.Width != 5 || cfg.ToT.Depth != 2 {
		t.Fatalf("tot = %+v", cfg.ToT)
	}
	if cfg.Protocol.MaxRetries != 2 {
		t.Fatalf("max retries = %d", cfg.Protocol.MaxRetries)
	}
	if cfg.Knowledge.Dir != "/var/lib/telos/knowledge" {
		t.Fatalf("knowledge dir = %q", cfg.Knowledge.Dir)
	}
	// untouched sections keep defaults
	if cfg.Gateway.MinConfidence != 0.3 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telos.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TELOS_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("env must win over file, got %q", cfg.Log.Level)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telos.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	watcher, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	changed := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	watcher.Start(t.Context())
	defer watcher.Stop()

	// rewrite with a future mod time so the poll sees a change
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Log.Level != "warn" {
			t.Fatalf("reloaded level = %q", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
