package app

import (
	"github.com/ghuser/txbus/bus"
	"github.com/ghuser/txbus/metrics"
	"github.com/ghuser/txbus/pkg/cache"
	"github.com/ghuser/txbus/pkg/database"
	"github.com/ghuser/txbus/pkg/events"
	"github.com/ghuser/txbus/pkg/logger"
)

// Application holds the shared infrastructure a demo process dispatches
// commands through.
//
// Logging: app.Logger is backed by a trace-aware handler — use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "dispatching command", "command", cmd.Name())
//	app.Logger.ErrorContext(ctx, "dispatch failed", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
type Application struct {
	Db       *database.Database
	Logger   logger.Logger
	EventBus *events.EventBus
	Redis    *cache.RedisClient
	Bus      *bus.Bus
	Metrics  metrics.Store
}
