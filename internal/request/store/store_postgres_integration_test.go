//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/request/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(s.ctx, "request_transitions", "document_requests", "payment_methods")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) insertRequest(status models.Status) id.RequestID {
	requestID := id.NewRequestID()
	_, err := s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO document_requests (id, request_number, client_id, document_type, status)
		VALUES ($1, $2, $3, 'birth_certificate', $4)`,
		uuid.UUID(requestID), "REQ-"+requestID.String()[:8], uuid.New(), int(status))
	s.Require().NoError(err)
	return requestID
}

func (s *PostgresStoreSuite) TestGetRequest() {
	requestID := s.insertRequest(models.StatusPending)

	req, err := s.store.GetRequest(s.ctx, requestID)

	s.Require().NoError(err)
	s.Equal(requestID, req.ID)
	s.Equal(models.StatusPending, req.Status)
	s.True(req.PaymentMethodID.IsNil())
}

func (s *PostgresStoreSuite) TestGetRequestNotFound() {
	_, err := s.store.GetRequest(s.ctx, id.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateStatusAndAudit() {
	requestID := s.insertRequest(models.StatusUnderReview)
	actorID := id.NewUserID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	old := models.StatusUnderReview

	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, requestID, old, models.StatusApproved, now); err != nil {
			return err
		}
		return s.store.AppendTransition(ctx, &models.TransitionRecord{
			RequestID: requestID,
			OldStatus: &old,
			NewStatus: models.StatusApproved,
			ActorID:   &actorID,
			Reason:    "request approved",
			CreatedAt: now,
		})
	})
	s.Require().NoError(err)

	req, err := s.store.GetRequest(s.ctx, requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, req.Status)

	records, err := s.store.ListTransitions(s.ctx, requestID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(models.StatusApproved, records[0].NewStatus)
	s.Require().NotNil(records[0].OldStatus)
	s.Equal(models.StatusUnderReview, *records[0].OldStatus)
	s.Require().NotNil(records[0].ActorID)
	s.Equal(actorID, *records[0].ActorID)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBackOnError() {
	requestID := s.insertRequest(models.StatusUnderReview)
	boom := errors.New("boom")

	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, requestID, models.StatusUnderReview, models.StatusApproved, time.Now()); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	req, err := s.store.GetRequest(s.ctx, requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, req.Status)
}

func (s *PostgresStoreSuite) TestUpdateStatusStaleStatusConflicts() {
	requestID := s.insertRequest(models.StatusUnderReview)

	// A competing writer commits first.
	err := s.store.UpdateStatus(s.ctx, requestID, models.StatusUnderReview, models.StatusRejected, time.Now())
	s.Require().NoError(err)

	// A writer holding the pre-commit snapshot must not win.
	err = s.store.UpdateStatus(s.ctx, requestID, models.StatusUnderReview, models.StatusApproved, time.Now())
	s.ErrorIs(err, sentinel.ErrConflict)

	req, gerr := s.store.GetRequest(s.ctx, requestID)
	s.Require().NoError(gerr)
	s.Equal(models.StatusRejected, req.Status)
}

func (s *PostgresStoreSuite) TestUpdateStatusMissingRowIsNotFound() {
	err := s.store.UpdateStatus(s.ctx, id.NewRequestID(), models.StatusUnderReview, models.StatusApproved, time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetPaymentMethod() {
	methodID := id.NewPaymentMethodID()
	_, err := s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO payment_methods (id, code, name, is_online)
		VALUES ($1, 'cash', 'Cash at counter', FALSE)`, uuid.UUID(methodID))
	s.Require().NoError(err)

	method, err := s.store.GetPaymentMethod(s.ctx, methodID)

	s.Require().NoError(err)
	s.True(method.IsCash())
}
