package app

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"humantask/internal/config"
	"humantask/internal/domain"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	workspace := t.TempDir()
	yml := "lifecycle:\n  hold_unassigned: true\nlog:\n  level: debug\n  format: json\n"
	if err := os.WriteFile(config.Path(workspace), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var logs bytes.Buffer
	rt, err := Open(context.Background(), workspace, &logs)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	if !rt.Config.Lifecycle.HoldUnassigned || rt.Config.Server.BasePath != "/v1" {
		t.Fatalf("config not overlaid on defaults: %+v", rt.Config)
	}
	id, err := rt.Engine.AddTask(context.Background(), domain.Task{}, nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	task, err := rt.Engine.GetTask(context.Background(), id)
	if err != nil || task.Status != domain.StatusCreated {
		t.Fatalf("held task: %+v %v", task, err)
	}
	if !strings.Contains(logs.String(), `"msg":"task added"`) {
		t.Fatalf("expected json engine logs, got %q", logs.String())
	}
	mfs, err := rt.Registry.Gather()
	if err != nil || len(mfs) == 0 {
		t.Fatalf("gather: %d %v", len(mfs), err)
	}
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	var logs bytes.Buffer
	rt, err := Open(context.Background(), t.TempDir(), &logs)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Config.Lifecycle.HoldUnassigned {
		t.Fatalf("unexpected hold default")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	var out bytes.Buffer
	log := NewLogger(cfg, &out)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(out.String(), "hidden") || !strings.Contains(out.String(), "shown") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
