package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v1" || cfg.Lifecycle.HoldUnassigned {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ClientTimeout() != 10*time.Second {
		t.Fatalf("client timeout = %s", cfg.ClientTimeout())
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
lifecycle:
  hold_unassigned: true
client:
  timeout_seconds: 3
webhooks:
  - url: http://engine.local/hooks
    events: [task.completed]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Lifecycle.HoldUnassigned || cfg.ClientTimeout() != 3*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Server.ProtocolAddr == "" {
		t.Fatalf("defaults lost on partial file")
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "task.completed" {
		t.Fatalf("webhooks not parsed: %+v", cfg.Webhooks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base path":   "server:\n  base_path: v1\n",
		"webhook url": "webhooks:\n  - url: ftp://x\n",
		"log level":   "log:\n  level: loud\n",
		"timeout":     "client:\n  timeout_seconds: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load missing: %v", err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(Path(dir), []byte("lifecycle:\n  hold_unassigned: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil || !cfg.Lifecycle.HoldUnassigned {
		t.Fatalf("load: %v %+v", err, cfg)
	}
}
