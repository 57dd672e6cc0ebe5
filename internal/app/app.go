package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"buildline/internal/choices"
	"buildline/internal/config"
	"buildline/internal/db"
	"buildline/internal/engine"
	"buildline/internal/logger"
	"buildline/internal/migrate"
)

// Options select the workspace and overrides for a process.
type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/buildline.yml.
	ConfigPath string
	// LogMode overrides config log.mode when set.
	LogMode string
}

// Runtime is an open workspace: migrated database, synced reference tables and a
// ready engine.
type Runtime struct {
	Engine engine.Engine
	Config *config.Config
	Log    *logger.Logger
	conn   *sql.DB
}

// LoadConfig reads the explicit config file or the workspace default.
func LoadConfig(opts Options) (*config.Config, error) {
	if strings.TrimSpace(opts.ConfigPath) != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// Open migrates the workspace database, seeds profiles and status choices from the
// config and loads the choice table once.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	mode := cfg.Log.Mode
	if opts.LogMode != "" {
		mode = opts.LogMode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap(ctx, conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rt, nil
}

func bootstrap(ctx context.Context, conn *sql.DB, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Log = log
	if err := e.SyncProfiles(ctx, cfg); err != nil {
		return nil, fmt.Errorf("sync profiles: %w", err)
	}
	if err := e.SyncChoices(ctx, cfg); err != nil {
		return nil, fmt.Errorf("sync choices: %w", err)
	}
	rows, err := e.Repo.ListStatusChoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load choices: %w", err)
	}
	e.Choices = choices.NewTable(rows)
	log.Debug("workspace ready", "choices", len(rows), "profiles", len(cfg.Profiles))
	return &Runtime{Engine: e, Config: cfg, Log: log, conn: conn}, nil
}

func (r *Runtime) Close() error {
	r.Log.Sync()
	return r.conn.Close()
}
