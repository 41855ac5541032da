package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civicdesk/internal/request/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"

	"github.com/google/uuid"
)

// PostgresStore persists document requests and their transition history.
// Mutations issued inside RunInTx share one SQL transaction via context, so a
// status update and its audit row commit or roll back together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside one SQL transaction. The transaction travels in
// the context so nested store calls join it transparently.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRequest loads a document request by ID.
func (s *PostgresStore) GetRequest(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error) {
	query := `
		SELECT id, request_number, client_id, document_type, status, priority,
		       payment_method_id, payment_status, created_at, updated_at
		FROM document_requests
		WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID))

	var (
		req             models.DocumentRequest
		reqID, clientID uuid.UUID
		methodID        uuid.NullUUID
		status          int
	)
	err := row.Scan(&reqID, &req.RequestNumber, &clientID, &req.DocumentType, &status,
		&req.Priority, &methodID, &req.PaymentStatus, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document request: %w", err)
	}
	req.ID = id.RequestID(reqID)
	req.ClientID = id.UserID(clientID)
	if methodID.Valid {
		req.PaymentMethodID = id.PaymentMethodID(methodID.UUID)
	}
	req.Status = models.Status(status)
	return &req, nil
}

// GetPaymentMethod loads a payment method by ID.
func (s *PostgresStore) GetPaymentMethod(ctx context.Context, methodID id.PaymentMethodID) (*models.PaymentMethod, error) {
	query := `
		SELECT id, code, name, is_online
		FROM payment_methods
		WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(methodID))

	var (
		method models.PaymentMethod
		mID    uuid.UUID
	)
	err := row.Scan(&mID, &method.Code, &method.Name, &method.IsOnline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payment method: %w", err)
	}
	method.ID = id.PaymentMethodID(mID)
	return &method, nil
}

// UpdateStatus moves the request from oldStatus to newStatus. The write is a
// compare-and-set on the current status: a transition validated from a stale
// snapshot reports ErrConflict instead of committing over a concurrent change.
func (s *PostgresStore) UpdateStatus(ctx context.Context, requestID id.RequestID, oldStatus, newStatus models.Status, at time.Time) error {
	query := `
		UPDATE document_requests
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(requestID), int(oldStatus), int(newStatus), at)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT TRUE FROM document_requests WHERE id = $1`, uuid.UUID(requestID)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		return sentinel.ErrConflict
	}
	return nil
}

// AppendTransition writes one audit row. Rows are append-only.
func (s *PostgresStore) AppendTransition(ctx context.Context, rec *models.TransitionRecord) error {
	query := `
		INSERT INTO request_transitions (request_id, old_status, new_status, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var oldStatus sql.NullInt32
	if rec.OldStatus != nil {
		oldStatus = sql.NullInt32{Int32: int32(*rec.OldStatus), Valid: true}
	}
	var actorID any
	if rec.ActorID != nil {
		actorID = uuid.UUID(*rec.ActorID)
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.RequestID),
		oldStatus,
		int(rec.NewStatus),
		actorID,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition record: %w", err)
	}
	return nil
}

// ListTransitions returns the audit trail for a request, oldest first.
func (s *PostgresStore) ListTransitions(ctx context.Context, requestID id.RequestID) ([]*models.TransitionRecord, error) {
	query := `
		SELECT id, request_id, old_status, new_status, actor_id, reason, created_at
		FROM request_transitions
		WHERE request_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list transition records: %w", err)
	}
	defer rows.Close()

	var records []*models.TransitionRecord
	for rows.Next() {
		var (
			rec       models.TransitionRecord
			reqID     uuid.UUID
			oldStatus sql.NullInt32
			actorID   uuid.NullUUID
			newStatus int
		)
		if err := rows.Scan(&rec.ID, &reqID, &oldStatus, &newStatus, &actorID, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition record: %w", err)
		}
		rec.RequestID = id.RequestID(reqID)
		rec.NewStatus = models.Status(newStatus)
		if oldStatus.Valid {
			old := models.Status(oldStatus.Int32)
			rec.OldStatus = &old
		}
		if actorID.Valid {
			actor := id.UserID(actorID.UUID)
			rec.ActorID = &actor
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
