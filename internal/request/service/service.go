// Package service orchestrates document request lifecycle changes: validate
// the transition, persist status and audit row atomically, then notify.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civicdesk/internal/events"
	"civicdesk/internal/request/metrics"
	"civicdesk/internal/request/models"
	"civicdesk/internal/request/transition"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"

	"github.com/google/uuid"
)

// Store is the persistence surface the lifecycle service needs. Mutations
// issued inside RunInTx must commit or roll back together.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error)
	GetPaymentMethod(ctx context.Context, methodID id.PaymentMethodID) (*models.PaymentMethod, error)
	UpdateStatus(ctx context.Context, requestID id.RequestID, oldStatus, newStatus models.Status, at time.Time) error
	AppendTransition(ctx context.Context, rec *models.TransitionRecord) error
	ListTransitions(ctx context.Context, requestID id.RequestID) ([]*models.TransitionRecord, error)
}

// Notifier fans a committed transition out to recipients. Implementations are
// best-effort; the service logs and swallows their errors.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, requestID id.RequestID, oldStatus, newStatus models.Status, actorID *id.UserID) error
	NotifyCancellation(ctx context.Context, requestID id.RequestID, clientID id.UserID, oldStatus, newStatus models.Status, reason string) error
}

// OutboxAppender records the transition event for stream publication inside
// the same transaction as the status change.
type OutboxAppender interface {
	Append(ctx context.Context, event events.TransitionEvent) error
}

// Result reports the transition that was applied.
type Result struct {
	OldStatus models.Status
	NewStatus models.Status
}

// BulkFailure records one failed item of a bulk apply.
type BulkFailure struct {
	RequestID id.RequestID
	Err       error
}

// BulkResult reports the per-item outcomes of a bulk apply.
type BulkResult struct {
	Successes []id.RequestID
	Failures  []BulkFailure
}

// Service is the request lifecycle manager.
type Service struct {
	store    Store
	notifier Notifier
	outbox   OutboxAppender
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier sets the notification dispatcher.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithOutbox sets the transition event outbox.
func WithOutbox(outbox OutboxAppender) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets a logger for dispatch failures and state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs the lifecycle service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Default reasons for the thin wrapper operations.
const (
	reasonApproved       = "request approved"
	reasonRejected       = "request rejected"
	reasonProcessing     = "processing started"
	reasonReadyForPickup = "document ready for pickup"
	reasonCompleted      = "request completed"
)

// ApplyStatusChange validates and applies one status transition. The status
// update, the audit row, and the outbox event are written in one atomic unit;
// on validator failure nothing is written and the error propagates unchanged.
func (s *Service) ApplyStatusChange(ctx context.Context, requestID id.RequestID, newStatus models.Status, actorID *id.UserID, reason string) (*Result, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, req, newStatus, actorID, reason)
}

// Approve moves a request to approved.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID, actorID id.UserID) (*Result, error) {
	return s.ApplyStatusChange(ctx, requestID, models.StatusApproved, &actorID, reasonApproved)
}

// Reject moves a request to rejected. An empty reason falls back to the default.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, actorID id.UserID, reason string) (*Result, error) {
	if reason == "" {
		reason = reasonRejected
	}
	return s.ApplyStatusChange(ctx, requestID, models.StatusRejected, &actorID, reason)
}

// Process moves a request to processing.
func (s *Service) Process(ctx context.Context, requestID id.RequestID, actorID id.UserID) (*Result, error) {
	return s.ApplyStatusChange(ctx, requestID, models.StatusProcessing, &actorID, reasonProcessing)
}

// MarkReadyForPickup moves a request to ready_for_pickup.
func (s *Service) MarkReadyForPickup(ctx context.Context, requestID id.RequestID, actorID id.UserID) (*Result, error) {
	return s.ApplyStatusChange(ctx, requestID, models.StatusReadyForPickup, &actorID, reasonReadyForPickup)
}

// Complete moves a request to completed.
func (s *Service) Complete(ctx context.Context, requestID id.RequestID, actorID id.UserID) (*Result, error) {
	return s.ApplyStatusChange(ctx, requestID, models.StatusCompleted, &actorID, reasonCompleted)
}

// CancelByClient cancels a request on behalf of its owning client. Unlike
// admin transitions, the resulting notification is addressed to admins: the
// client who cancelled already knows.
func (s *Service) CancelByClient(ctx context.Context, requestID id.RequestID, clientID id.UserID, reason string) (*Result, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ClientID != clientID {
		return nil, dErrors.New(dErrors.CodeForbidden, "request does not belong to the caller")
	}

	result, err := s.transact(ctx, req, models.StatusCancelled, &clientID, reason)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if nerr := s.notifier.NotifyCancellation(ctx, req.ID, clientID, result.OldStatus, result.NewStatus, reason); nerr != nil {
			s.logger.ErrorContext(ctx, "cancellation notification failed",
				"request_id", req.ID,
				"error", nerr,
			)
		}
	}
	return result, nil
}

// BulkApply applies the same transition to many requests. Each request is its
// own atomic unit: one illegal transition is recorded as a failure and does
// not prevent or roll back the remaining items.
func (s *Service) BulkApply(ctx context.Context, requestIDs []id.RequestID, newStatus models.Status, actorID *id.UserID, reason string) (*BulkResult, error) {
	result := &BulkResult{}
	for _, requestID := range requestIDs {
		if _, err := s.ApplyStatusChange(ctx, requestID, newStatus, actorID, reason); err != nil {
			result.Failures = append(result.Failures, BulkFailure{RequestID: requestID, Err: err})
			if s.metrics != nil {
				s.metrics.ObserveBulkItem("failure")
			}
			continue
		}
		result.Successes = append(result.Successes, requestID)
		if s.metrics != nil {
			s.metrics.ObserveBulkItem("success")
		}
	}
	return result, nil
}

// Get loads one request.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error) {
	return s.loadRequest(ctx, requestID)
}

// History returns the request's audit trail, oldest first.
func (s *Service) History(ctx context.Context, requestID id.RequestID) ([]*models.TransitionRecord, error) {
	if _, err := s.loadRequest(ctx, requestID); err != nil {
		return nil, err
	}
	records, err := s.store.ListTransitions(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transition history")
	}
	return records, nil
}

// apply validates the transition, persists it, then dispatches the client
// notification best-effort.
func (s *Service) apply(ctx context.Context, req *models.DocumentRequest, newStatus models.Status, actorID *id.UserID, reason string) (*Result, error) {
	result, err := s.transact(ctx, req, newStatus, actorID, reason)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if nerr := s.notifier.NotifyStatusChange(ctx, req.ID, result.OldStatus, result.NewStatus, actorID); nerr != nil {
			s.logger.ErrorContext(ctx, "status change notification failed",
				"request_id", req.ID,
				"new_status", result.NewStatus.String(),
				"error", nerr,
			)
		}
	}
	return result, nil
}

// transact runs validation and the atomic write, without dispatching.
func (s *Service) transact(ctx context.Context, req *models.DocumentRequest, newStatus models.Status, actorID *id.UserID, reason string) (*Result, error) {
	cashPayment, err := s.isCashPayment(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := transition.Validate(req.Status, newStatus, cashPayment); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveRejected(string(dErrors.CodeOf(err)))
		}
		return nil, err
	}

	oldStatus := req.Status
	now := requestcontext.Now(ctx)

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		// Compare-and-set against the status the transition was validated
		// from. A concurrent commit between load and write surfaces here as a
		// conflict instead of silently applying a forbidden transition.
		if err := s.store.UpdateStatus(ctx, req.ID, oldStatus, newStatus, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "request status changed concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update request status")
		}
		old := oldStatus
		rec := &models.TransitionRecord{
			RequestID: req.ID,
			OldStatus: &old,
			NewStatus: newStatus,
			ActorID:   actorID,
			Reason:    reason,
			CreatedAt: now,
		}
		if err := s.store.AppendTransition(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append transition record")
		}
		if s.outbox != nil {
			if err := s.outbox.Append(ctx, s.buildEvent(req, oldStatus, newStatus, actorID, reason, now)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append outbox event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveApplied(newStatus.String())
	}
	s.logger.InfoContext(ctx, "status transition applied",
		"request_id", req.ID,
		"request_number", req.RequestNumber,
		"old_status", oldStatus.String(),
		"new_status", newStatus.String(),
	)
	return &Result{OldStatus: oldStatus, NewStatus: newStatus}, nil
}

func (s *Service) buildEvent(req *models.DocumentRequest, oldStatus, newStatus models.Status, actorID *id.UserID, reason string, at time.Time) events.TransitionEvent {
	event := events.TransitionEvent{
		ID:            uuid.New(),
		RequestID:     req.ID.String(),
		RequestNumber: req.RequestNumber,
		NewStatus:     int(newStatus),
		Reason:        reason,
		OccurredAt:    at,
	}
	old := int(oldStatus)
	event.OldStatus = &old
	if actorID != nil {
		actor := actorID.String()
		event.ActorID = &actor
	}
	return event
}

// isCashPayment resolves the payment context. The payment method's IsOnline
// flag is authoritative; a request with no method yet is treated as online so
// it cannot skip payment confirmation.
func (s *Service) isCashPayment(ctx context.Context, req *models.DocumentRequest) (bool, error) {
	if req.PaymentMethodID.IsNil() {
		return false, nil
	}
	method, err := s.store.GetPaymentMethod(ctx, req.PaymentMethodID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "request references an unknown payment method")
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment method")
	}
	return method.IsCash(), nil
}

func (s *Service) loadRequest(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return req, nil
}
