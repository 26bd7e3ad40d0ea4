package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"maintline/internal/config"
	"maintline/internal/db"
	"maintline/internal/engine"
	"maintline/internal/migrate"
	"maintline/internal/telemetry"
)

// App is the wired process: config, database handle, engine and telemetry.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Engine  engine.Engine
	Log     zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

type Options struct {
	Workspace string
	// LogOutput defaults to stderr.
	LogOutput io.Writer
	// SkipMigrate leaves the schema untouched; used by read-only commands.
	SkipMigrate bool
}

// Open builds the logger, opens and migrates the database and constructs the
// engine. The caller owns the returned App and must Close it.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := telemetry.NewLogger(cfg.Logging.Level, cfg.Logging.Format, out)
	if err != nil {
		return nil, err
	}
	cal, err := cfg.BuildCalendar()
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(db.Config{Path: cfg.Database.Path, Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !opts.SkipMigrate {
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		for _, name := range applied {
			logger.Info().Str("migration", name).Msg("migration applied")
		}
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics {
		metrics = telemetry.NewMetrics(cfg.Telemetry.Namespace)
	}
	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing, "maintline", out)
	if err != nil {
		conn.Close()
		return nil, err
	}

	eng := engine.New(conn, cal)
	eng.Log = telemetry.Component(logger, "engine")
	eng.Metrics = metrics
	eng.Tracer = tracer

	logger.Debug().Str("db", db.Path(db.Config{Path: cfg.Database.Path, Workspace: opts.Workspace})).Msg("database ready")
	return &App{
		Config:  cfg,
		DB:      conn,
		Engine:  eng,
		Log:     logger,
		Metrics: metrics,
		Tracer:  tracer,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	if err := a.Tracer.Shutdown(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("tracer shutdown")
	}
	return a.DB.Close()
}
