package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"cablecheck/internal/config"
	"cablecheck/internal/db"
	"cablecheck/internal/engine"
	"cablecheck/internal/logging"
	"cablecheck/internal/migrate"
	"cablecheck/internal/oracle"
)

// Options select the workspace and config a process runs against.
type Options struct {
	Workspace  string
	ConfigPath string
	// LogLevel overrides config.log.level when set.
	LogLevel string
	// OracleProvider and OracleModel override the oracle section when set.
	OracleProvider string
	OracleModel    string
	// Seed loads the sample designs into an empty design table.
	Seed    bool
	ActorID string
	// Oracle replaces the configured backend, mostly for tests.
	Oracle oracle.Oracle
}

// App bundles the wired dependencies of one process.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *sql.DB
	Engine engine.Engine
}

// LoadConfig reads an explicit config file, or the workspace cablecheck.yml
// when present, falling back to defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(workspace)
}

// Open loads config, builds the logger and oracle, opens and migrates the
// workspace database, and returns the engine on top of it.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.OracleProvider != "" || opts.OracleModel != "" {
		if opts.OracleProvider != "" {
			cfg.Oracle.Provider = opts.OracleProvider
		}
		if opts.OracleModel != "" {
			cfg.Oracle.Model = opts.OracleModel
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	o := opts.Oracle
	if o == nil {
		o, err = oracle.New(ctx, cfg.Oracle, log)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	e := engine.New(conn, cfg, o, log)
	if opts.Seed {
		n, err := e.SeedDesigns(ctx, opts.ActorID)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed designs: %w", err)
		}
		if n > 0 {
			log.Info("seeded sample designs", zap.Int("count", n))
		}
	}
	return &App{Config: cfg, Log: log, DB: conn, Engine: e}, nil
}

// Close releases the database and flushes the logger.
func (a *App) Close() error {
	_ = a.Log.Sync()
	return a.DB.Close()
}
