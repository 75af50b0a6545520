// Package app assembles the chat service from its parts: configuration,
// database pool, model provider, specialist agents, session store, feedback
// correlator, and the HTTP surface. Setup builds the dependency graph and
// Run serves it until the process is told to stop.
package app

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iecho-project/iecho/internal/config"
	"github.com/iecho-project/iecho/internal/docstore"
	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/log"
	"github.com/iecho-project/iecho/internal/session"
)

// App is the assembled application.
type App struct {
	Config     *config.Config
	Logger     log.Logger
	Pool       *pgxpool.Pool
	Engine     *engine.Engine
	Sessions   *session.Store
	Correlator *feedback.Correlator
	Docs       *docstore.Store // nil when no documents bucket is configured
	Handler    http.Handler

	otelShutdown func()

	// ctx scopes background work (the session sweeper); cancel stops it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Close releases all resources held by the App. Safe to call on a
// partially initialized App, which Setup relies on for error cleanup.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	// Stop background goroutines before their dependencies go away
	if a.cancel != nil {
		a.cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	if a.otelShutdown != nil {
		a.otelShutdown()
	}

	return nil
}
