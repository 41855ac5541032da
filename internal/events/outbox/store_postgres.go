// Package outbox persists transition events awaiting publication. Appends
// join the caller's SQL transaction so an event exists exactly when its
// status change committed.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"civicdesk/internal/events"
	txcontext "civicdesk/pkg/platform/tx"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Entry is one pending outbox row.
type Entry struct {
	ID        int64
	Event     events.TransitionEvent
	CreatedAt time.Time
}

// PostgresStore implements the transactional outbox for transition events.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed outbox store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes one event to the outbox. Joins the transaction in ctx when
// present.
func (s *PostgresStore) Append(ctx context.Context, event events.TransitionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.RequestID,
		"request.status_changed",
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchPending returns up to limit unpublished entries, oldest first.
func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT seq, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPublished stamps entries as delivered so they are not re-fetched.
func (s *PostgresStore) MarkPublished(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	query := `
		UPDATE outbox
		SET published_at = $2
		WHERE seq = ANY($1)
	`
	_, err := s.db.ExecContext(ctx, query, pq.Array(seqs), time.Now())
	if err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}
