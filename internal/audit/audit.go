package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Entry is one row of audit_logs.
type Entry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ErrIncompleteEntry is returned when an entry lacks its action or target.
var ErrIncompleteEntry = errors.New("audit: entry requires action, entity and entity id")

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger writes entries into audit_logs.
type Logger struct {
	db  Execer
	now func() time.Time
}

// NewLogger returns a Logger backed by db.
func NewLogger(db Execer) *Logger {
	return &Logger{db: db, now: time.Now}
}

// Record persists the entry. A zero At is stamped with the current time.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	if l == nil || l.db == nil {
		return errors.New("audit: logger not initialised")
	}
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return ErrIncompleteEntry
	}
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ActorID, e.Action, e.Entity, e.EntityID, meta, e.At)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
