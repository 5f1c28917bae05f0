package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"humantask/internal/config"
	"humantask/internal/db"
	"humantask/internal/engine"
	"humantask/internal/metrics"
	"humantask/internal/migrate"
)

// Runtime is an opened workspace: migrated database, loaded config and the
// task engine built on them.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Registry  *prometheus.Registry
	Logger    *slog.Logger
}

// Open loads the workspace config (defaults when humantask.yml is absent),
// opens and migrates the database and wires the engine. Logs go to logOut.
func Open(ctx context.Context, workspace string, logOut io.Writer) (*Runtime, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, logOut)
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeoutMS: cfg.Storage.BusyTimeoutMS})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(workspace), err)
	}
	if applied > 0 {
		logger.Info("database migrated", "path", db.Path(workspace), "applied", applied)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e := engine.New(conn, cfg)
	e.Metrics = metrics.New(reg)
	e.Logger = logger
	return &Runtime{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    e,
		Registry:  reg,
		Logger:    logger,
	}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// NewLogger builds the slog logger described by cfg.Log.
func NewLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
