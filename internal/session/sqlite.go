package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLite persists sessions in a single table, one JSON-encoded history per row.
type SQLite struct {
	db *sql.DB
	// writeMu serializes read-modify-write cycles so concurrent appends do not
	// hit SQLITE_BUSY inside a transaction.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		history_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *SQLite) Create(ctx context.Context, id string) (*domain.Session, error) {
	return s.Append(ctx, id)
}

func (s *SQLite) Append(ctx context.Context, id string, turns ...domain.ChatTurn) (*domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var out *domain.Session
	err := withBusyRetry(ctx, "append session", func() error {
		sess, err := s.appendOnce(ctx, id, turns)
		out = sess
		return err
	})
	return out, err
}

func (s *SQLite) appendOnce(ctx context.Context, id string, turns []domain.ChatTurn) (*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess == nil {
		sess = &domain.Session{ID: id, History: domain.History{}, CreatedAt: now}
	} else if len(turns) == 0 {
		return sess, nil
	}
	sess.History = append(sess.History, turns...)
	sess.UpdatedAt = now

	historyJSON, err := json.Marshal(sess.History)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}

	query := `
	INSERT INTO chat_sessions (session_id, history_json, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		history_json = excluded.history_json,
		updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, query, id, string(historyJSON), sess.CreatedAt.UnixMilli(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "delete session", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	threshold := s.now().Add(-idle).UnixMilli()
	var removed int64
	err := withBusyRetry(ctx, "sweep sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("sweep sessions: %w", err)
		}
		removed, err = result.RowsAffected()
		return err
	})
	return int(removed), err
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) load(ctx context.Context, q queryer, id string) (*domain.Session, error) {
	row := q.QueryRowContext(ctx,
		`SELECT session_id, history_json, created_at, updated_at FROM chat_sessions WHERE session_id = ?`, id)

	var sess domain.Session
	var historyJSON string
	var createdAt, updatedAt int64
	err := row.Scan(&sess.ID, &historyJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", id, err)
	}
	if sess.History == nil {
		sess.History = domain.History{}
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	return &sess, nil
}

// isBusyError reports whether err is an SQLite lock conflict worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry retries fn with exponential backoff (50ms, 100ms, 200ms) while
// it fails with a lock conflict.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !isBusyError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries, err)
}
