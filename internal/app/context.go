// Package app wires the workspace: config, local database, secure storage,
// session, API client and flow engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"safeplate/internal/config"
	"safeplate/internal/db"
	"safeplate/internal/engine"
	"safeplate/internal/events"
	"safeplate/internal/migrate"
	"safeplate/internal/repo"
	"safeplate/internal/securestore"
	"safeplate/internal/session"
	sdk "safeplate/sdk/go"
)

type Options struct {
	Workspace string
	// APIURL overrides api.base_url from safeplate.yml when set.
	APIURL string
	Logger *zap.Logger
}

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Session   *session.Manager
	Client    *sdk.Client
	Engine    engine.Engine
	Logger    *zap.Logger
}

// ResolveConfig loads safeplate.yml (or the defaults) and applies the API
// override. The result is validated.
func ResolveConfig(workspace, apiURL string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if u := strings.TrimSpace(apiURL); u != "" {
		cfg.API.BaseURL = u
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open prepares the workspace and restores any persisted session.
func Open(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := ResolveConfig(opts.Workspace, opts.APIURL)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	store, err := securestore.Open(db.Dir(opts.Workspace), r)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("secure storage: %w", err)
	}

	sess := session.New(nil, store, logger.Named("session"))
	sess.Events = events.Writer{DB: conn}
	client := sdk.New(cfg.API.BaseURL, sess)
	if cfg.API.Timeout > 0 {
		client.Timeout = cfg.API.Timeout
	}
	client.Logger = logger.Named("api")
	sess.API = client
	if err := sess.Restore(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	eng := engine.New(conn, cfg, client, sess)
	eng.Logger = logger.Named("engine")
	return &App{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Session:   sess,
		Client:    client,
		Engine:    eng,
		Logger:    logger,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
