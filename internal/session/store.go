// Package session persists chat histories keyed by caller-chosen session IDs.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/domain"
)

// ErrNotFound is returned by Get when no session has the given ID.
var ErrNotFound = errors.New("session not found")

// Store defines how chat sessions are persisted. Implementations must be safe
// for concurrent use and must return copies that callers may modify.
type Store interface {
	// Get returns the session with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Create returns the session with id, creating an empty one if absent.
	Create(ctx context.Context, id string) (*domain.Session, error)

	// Append adds turns to the end of the session history in one step,
	// creating the session if needed, and returns the updated session.
	Append(ctx context.Context, id string, turns ...domain.ChatTurn) (*domain.Session, error)

	// Delete removes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, id string) error

	// Sweep removes sessions idle for longer than idle and reports how many
	// were removed.
	Sweep(ctx context.Context, idle time.Duration) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// New opens the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", "memory":
		logger.Info("Using in-memory session store", "max_sessions", cfg.MaxSessions, "idle_ttl", cfg.IdleTTL)
		return NewMemory(cfg.MaxSessions), nil
	case "sqlite":
		logger.Info("Using SQLite session store", "path", cfg.DBPath)
		return NewSQLite(cfg.DBPath)
	case "redis":
		logger.Info("Using Redis session store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.IdleTTL,
		})
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
