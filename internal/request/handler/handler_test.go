package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/request/models"
	"civicdesk/internal/request/service"
	"civicdesk/internal/request/store"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	store    *store.MemoryStore
	router   chi.Router
	adminID  id.UserID
	clientID id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = store.NewMemory()
	svc, err := service.New(s.store)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	New(svc).Register(s.router)

	s.adminID = id.NewUserID()
	s.clientID = id.NewUserID()
}

func (s *HandlerSuite) seedRequest(status models.Status) id.RequestID {
	req := &models.DocumentRequest{
		ID:            id.NewRequestID(),
		RequestNumber: "REQ-2026-000007",
		ClientID:      s.clientID,
		DocumentType:  "business_permit",
		Status:        status,
		Priority:      models.PriorityNormal,
	}
	s.store.SeedRequest(req)
	return req.ID
}

func (s *HandlerSuite) do(method, target, body string, actorID id.UserID, role id.RecipientType) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(requestcontext.WithActor(req.Context(), actorID, role))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// ==================== Admin transitions ====================

func (s *HandlerSuite) TestApprove() {
	requestID := s.seedRequest(models.StatusUnderReview)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/approve", requestID), "", s.adminID, id.RecipientAdmin)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("under_review", resp["old_status"])
	s.Equal("approved", resp["new_status"])
}

func (s *HandlerSuite) TestApproveRequiresAdmin() {
	requestID := s.seedRequest(models.StatusUnderReview)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/approve", requestID), "", s.clientID, id.RecipientClient)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestIllegalTransitionIsConflict() {
	requestID := s.seedRequest(models.StatusPending)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/complete", requestID), "", s.adminID, id.RecipientAdmin)
	s.Equal(http.StatusConflict, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("invalid_transition", resp["error"])
}

func (s *HandlerSuite) TestApplyStatusRejectsUnknownName() {
	requestID := s.seedRequest(models.StatusPending)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/status", requestID),
		`{"status":"archived"}`, s.adminID, id.RecipientAdmin)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRejectCarriesReasonIntoHistory() {
	requestID := s.seedRequest(models.StatusUnderReview)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/reject", requestID),
		`{"reason":"missing supporting documents"}`, s.adminID, id.RecipientAdmin)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/requests/%s/history", requestID), "", s.adminID, id.RecipientAdmin)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		History []struct {
			NewStatus string `json:"new_status"`
			Reason    string `json:"reason"`
		} `json:"history"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.History, 1)
	s.Equal("rejected", resp.History[0].NewStatus)
	s.Equal("missing supporting documents", resp.History[0].Reason)
}

func (s *HandlerSuite) TestUnknownRequestIsNotFound() {
	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/approve", id.NewRequestID()), "", s.adminID, id.RecipientAdmin)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestMalformedRequestIDIsBadRequest() {
	rec := s.do(http.MethodPost, "/requests/not-a-uuid/approve", "", s.adminID, id.RecipientAdmin)
	s.Equal(http.StatusBadRequest, rec.Code)
}

// ==================== Read routes ====================

func (s *HandlerSuite) TestGetHidesForeignRequestFromClient() {
	requestID := s.seedRequest(models.StatusPending)
	other := id.NewUserID()

	rec := s.do(http.MethodGet, fmt.Sprintf("/requests/%s", requestID), "", other, id.RecipientClient)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/requests/%s", requestID), "", s.clientID, id.RecipientClient)
	s.Equal(http.StatusOK, rec.Code)
}

// ==================== Cancellation ====================

func (s *HandlerSuite) TestCancelByOwner() {
	requestID := s.seedRequest(models.StatusPending)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/cancel", requestID),
		`{"reason":"no longer needed"}`, s.clientID, id.RecipientClient)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("cancelled", resp["new_status"])
}

func (s *HandlerSuite) TestCancelByNonOwnerIsForbidden() {
	requestID := s.seedRequest(models.StatusPending)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/cancel", requestID), "", id.NewUserID(), id.RecipientClient)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestCancelAfterReadyIsConflict() {
	requestID := s.seedRequest(models.StatusReadyForPickup)

	rec := s.do(http.MethodPost, fmt.Sprintf("/requests/%s/cancel", requestID), "", s.clientID, id.RecipientClient)
	s.Equal(http.StatusConflict, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("not_cancellable", resp["error"])
}

// ==================== Bulk ====================

func (s *HandlerSuite) TestBulkApplyReportsPerItemOutcomes() {
	good1 := s.seedRequest(models.StatusUnderReview)
	good2 := s.seedRequest(models.StatusUnderReview)
	bad := s.seedRequest(models.StatusCompleted)

	body := fmt.Sprintf(`{"request_ids":[%q,%q,%q],"status":"approved"}`, good1, good2, bad)
	rec := s.do(http.MethodPost, "/requests/bulk-status", body, s.adminID, id.RecipientAdmin)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		Succeeded []string `json:"succeeded"`
		Failed    []struct {
			RequestID string `json:"request_id"`
			Error     string `json:"error"`
		} `json:"failed"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.ElementsMatch([]string{good1.String(), good2.String()}, resp.Succeeded)
	s.Require().Len(resp.Failed, 1)
	s.Equal(bad.String(), resp.Failed[0].RequestID)
	s.Equal("invalid_transition", resp.Failed[0].Error)
}

func (s *HandlerSuite) TestBulkApplyRejectsEmptyList() {
	rec := s.do(http.MethodPost, "/requests/bulk-status",
		`{"request_ids":[],"status":"approved"}`, s.adminID, id.RecipientAdmin)
	s.Equal(http.StatusBadRequest, rec.Code)
}
