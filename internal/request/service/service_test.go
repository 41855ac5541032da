package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/events/outbox"
	"civicdesk/internal/request/models"
	"civicdesk/internal/request/store"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// fakeNotifier records dispatches and can be told to fail.
type fakeNotifier struct {
	statusChanges int
	cancellations int
	fail          bool
}

func (n *fakeNotifier) NotifyStatusChange(ctx context.Context, requestID id.RequestID, oldStatus, newStatus models.Status, actorID *id.UserID) error {
	n.statusChanges++
	if n.fail {
		return errors.New("dispatch failed")
	}
	return nil
}

func (n *fakeNotifier) NotifyCancellation(ctx context.Context, requestID id.RequestID, clientID id.UserID, oldStatus, newStatus models.Status, reason string) error {
	n.cancellations++
	if n.fail {
		return errors.New("dispatch failed")
	}
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store    *store.MemoryStore
	outbox   *outbox.MemoryStore
	notifier *fakeNotifier
	svc      *Service

	ctx      context.Context
	now      time.Time
	adminID  id.UserID
	clientID id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.outbox = outbox.NewMemory()
	s.notifier = &fakeNotifier{}

	svc, err := New(s.store, WithNotifier(s.notifier), WithOutbox(s.outbox))
	s.Require().NoError(err)
	s.svc = svc

	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.adminID = id.NewUserID()
	s.clientID = id.NewUserID()
}

func (s *ServiceSuite) seedRequest(status models.Status) *models.DocumentRequest {
	req := &models.DocumentRequest{
		ID:            id.NewRequestID(),
		RequestNumber: "REQ-2026-000101",
		ClientID:      s.clientID,
		DocumentType:  "land_title_copy",
		Status:        status,
		Priority:      models.PriorityNormal,
	}
	s.store.SeedRequest(req)
	return req
}

func (s *ServiceSuite) seedCashMethod() id.PaymentMethodID {
	method := &models.PaymentMethod{
		ID:       id.NewPaymentMethodID(),
		Code:     "cash",
		Name:     "Cash at counter",
		IsOnline: false,
	}
	s.store.SeedPaymentMethod(method)
	return method.ID
}

// ==================== Single transitions ====================

func (s *ServiceSuite) TestApproveWritesStatusAuditAndOutboxTogether() {
	req := s.seedRequest(models.StatusUnderReview)

	result, err := s.svc.Approve(s.ctx, req.ID, s.adminID)

	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, result.OldStatus)
	s.Equal(models.StatusApproved, result.NewStatus)

	stored, err := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status)
	s.Equal(s.now, stored.UpdatedAt)

	history, err := s.store.ListTransitions(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Require().NotNil(history[0].OldStatus)
	s.Equal(models.StatusUnderReview, *history[0].OldStatus)
	s.Equal(models.StatusApproved, history[0].NewStatus)
	s.Require().NotNil(history[0].ActorID)
	s.Equal(s.adminID, *history[0].ActorID)
	s.Equal(s.now, history[0].CreatedAt)

	s.Equal(1, s.outbox.Len())
	s.Equal(1, s.notifier.statusChanges)
}

func (s *ServiceSuite) TestValidatorFailureWritesNothing() {
	req := s.seedRequest(models.StatusPending)

	_, err := s.svc.Complete(s.ctx, req.ID, s.adminID)

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	stored, gerr := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(gerr)
	s.Equal(models.StatusPending, stored.Status)

	history, herr := s.store.ListTransitions(s.ctx, req.ID)
	s.Require().NoError(herr)
	s.Empty(history)
	s.Zero(s.outbox.Len())
	s.Zero(s.notifier.statusChanges)
}

func (s *ServiceSuite) TestRejectDefaultsReason() {
	req := s.seedRequest(models.StatusUnderReview)

	_, err := s.svc.Reject(s.ctx, req.ID, s.adminID, "")

	s.Require().NoError(err)
	history, herr := s.store.ListTransitions(s.ctx, req.ID)
	s.Require().NoError(herr)
	s.Require().Len(history, 1)
	s.Equal(reasonRejected, history[0].Reason)
}

func (s *ServiceSuite) TestNotifierFailureDoesNotFailTransition() {
	req := s.seedRequest(models.StatusUnderReview)
	s.notifier.fail = true

	_, err := s.svc.Approve(s.ctx, req.ID, s.adminID)

	s.Require().NoError(err)
	stored, gerr := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(gerr)
	s.Equal(models.StatusApproved, stored.Status)
}

func (s *ServiceSuite) TestUnknownRequestIsNotFound() {
	_, err := s.svc.Approve(s.ctx, id.NewRequestID(), s.adminID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// staleStore serves a fixed snapshot from GetRequest while writes hit the real
// store, reproducing a load that happened before a concurrent commit.
type staleStore struct {
	*store.MemoryStore
	snapshot models.DocumentRequest
}

func (s *staleStore) GetRequest(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error) {
	cp := s.snapshot
	return &cp, nil
}

func (s *ServiceSuite) TestConcurrentCommitLosesWithConflict() {
	req := s.seedRequest(models.StatusUnderReview)

	// A reject commits while the approve still holds the under_review snapshot.
	_, err := s.svc.Reject(s.ctx, req.ID, s.adminID, "incomplete documents")
	s.Require().NoError(err)

	stale, err := New(&staleStore{MemoryStore: s.store, snapshot: *req},
		WithNotifier(s.notifier), WithOutbox(s.outbox))
	s.Require().NoError(err)

	_, err = stale.Approve(s.ctx, req.ID, s.adminID)

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stored, gerr := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(gerr)
	s.Equal(models.StatusRejected, stored.Status)

	// Only the winning transition leaves a trace.
	history, herr := s.store.ListTransitions(s.ctx, req.ID)
	s.Require().NoError(herr)
	s.Require().Len(history, 1)
	s.Equal(models.StatusRejected, history[0].NewStatus)
	s.Equal(1, s.outbox.Len())
	s.Equal(1, s.notifier.statusChanges)
}

// ==================== Payment context ====================

func (s *ServiceSuite) TestCashPaymentSkipsConfirmation() {
	req := s.seedRequest(models.StatusApproved)
	req.PaymentMethodID = s.seedCashMethod()
	s.store.SeedRequest(req)

	result, err := s.svc.Process(s.ctx, req.ID, s.adminID)

	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, result.NewStatus)
}

func (s *ServiceSuite) TestOnlinePaymentCannotSkipConfirmation() {
	method := &models.PaymentMethod{
		ID:       id.NewPaymentMethodID(),
		Code:     "gcash",
		Name:     "GCash",
		IsOnline: true,
	}
	s.store.SeedPaymentMethod(method)
	req := s.seedRequest(models.StatusApproved)
	req.PaymentMethodID = method.ID
	s.store.SeedRequest(req)

	_, err := s.svc.Process(s.ctx, req.ID, s.adminID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestMissingPaymentMethodTreatedAsOnline() {
	req := s.seedRequest(models.StatusApproved)

	_, err := s.svc.Process(s.ctx, req.ID, s.adminID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestDanglingPaymentMethodIsInternal() {
	req := s.seedRequest(models.StatusApproved)
	req.PaymentMethodID = id.NewPaymentMethodID() // never seeded
	s.store.SeedRequest(req)

	_, err := s.svc.Process(s.ctx, req.ID, s.adminID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// ==================== Cancellation ====================

func (s *ServiceSuite) TestCancelByClient() {
	req := s.seedRequest(models.StatusPending)

	result, err := s.svc.CancelByClient(s.ctx, req.ID, s.clientID, "no longer needed")

	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, result.NewStatus)
	s.Equal(1, s.notifier.cancellations)
	s.Zero(s.notifier.statusChanges)
}

func (s *ServiceSuite) TestCancelByNonOwnerForbidden() {
	req := s.seedRequest(models.StatusPending)

	_, err := s.svc.CancelByClient(s.ctx, req.ID, id.NewUserID(), "")

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	stored, gerr := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(gerr)
	s.Equal(models.StatusPending, stored.Status)
}

func (s *ServiceSuite) TestCancelNotifierFailureDoesNotFailCancel() {
	req := s.seedRequest(models.StatusPending)
	s.notifier.fail = true

	_, err := s.svc.CancelByClient(s.ctx, req.ID, s.clientID, "")
	s.NoError(err)
}

// ==================== Bulk ====================

func (s *ServiceSuite) TestBulkApplyIsolatesFailures() {
	var ids []id.RequestID
	for i := 0; i < 4; i++ {
		ids = append(ids, s.seedRequest(models.StatusUnderReview).ID)
	}
	terminal := s.seedRequest(models.StatusCompleted)
	ids = append(ids, terminal.ID)

	result, err := s.svc.BulkApply(s.ctx, ids, models.StatusApproved, &s.adminID, "batch approval")

	s.Require().NoError(err)
	s.Len(result.Successes, 4)
	s.Require().Len(result.Failures, 1)
	s.Equal(terminal.ID, result.Failures[0].RequestID)
	s.True(dErrors.HasCode(result.Failures[0].Err, dErrors.CodeInvalidTransition))

	// The succeeded items really moved.
	for _, requestID := range result.Successes {
		stored, gerr := s.store.GetRequest(s.ctx, requestID)
		s.Require().NoError(gerr)
		s.Equal(models.StatusApproved, stored.Status)
	}
}
