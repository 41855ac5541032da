// Package handler exposes the request lifecycle over HTTP. Admin routes drive
// the staff workflow; the single client route is cancellation.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/request/models"
	"civicdesk/internal/request/service"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// Handler serves the request lifecycle routes.
type Handler struct {
	svc *service.Service
}

// New constructs the lifecycle handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the lifecycle routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/bulk-status", h.BulkApply)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/history", h.History)
			r.Post("/status", h.ApplyStatus)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/process", h.Process)
			r.Post("/ready", h.MarkReady)
			r.Post("/complete", h.Complete)
			r.Post("/cancel", h.Cancel)
		})
	})
}

type statusChangeRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type bulkStatusRequest struct {
	RequestIDs []string `json:"request_ids"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
}

type transitionResponse struct {
	RequestID string `json:"request_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type requestResponse struct {
	ID            string    `json:"id"`
	RequestNumber string    `json:"request_number"`
	ClientID      string    `json:"client_id"`
	DocumentType  string    `json:"document_type"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type historyEntry struct {
	OldStatus *string   `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ActorID   *string   `json:"actor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type bulkFailureResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
}

type bulkResponse struct {
	Succeeded []string              `json:"succeeded"`
	Failed    []bulkFailureResponse `json:"failed"`
}

// Get returns one request. Admins see any request, clients only their own.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}

	actorID := requestcontext.ActorID(r.Context())
	role := requestcontext.ActorRole(r.Context())
	if actorID.IsNil() || !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, err := h.svc.Get(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if role == id.RecipientClient && req.ClientID != actorID {
		// Hidden, not forbidden: clients cannot probe for foreign request IDs.
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "request not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

// History returns the request's transition audit trail. Admin only.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	records, err := h.svc.History(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toHistoryEntry(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// ApplyStatus applies an arbitrary named transition. Admin only.
func (h *Handler) ApplyStatus(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	actorID, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	body, ok := httputil.Decode[statusChangeRequest](w, r)
	if !ok {
		return
	}

	newStatus, err := models.ParseStatus(body.Status)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unknown status"))
		return
	}

	result, err := h.svc.ApplyStatusChange(r.Context(), requestID, newStatus, &actorID, body.Reason)
	h.writeTransition(w, requestID, result, err)
}

// Approve moves a request to approved. Admin only.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(r *http.Request, requestID id.RequestID, actorID id.UserID, _ string) (*service.Result, error) {
		return h.svc.Approve(r.Context(), requestID, actorID)
	})
}

// Reject moves a request to rejected. Admin only; accepts an optional reason.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(r *http.Request, requestID id.RequestID, actorID id.UserID, reason string) (*service.Result, error) {
		return h.svc.Reject(r.Context(), requestID, actorID, reason)
	})
}

// Process moves a request to processing. Admin only.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(r *http.Request, requestID id.RequestID, actorID id.UserID, _ string) (*service.Result, error) {
		return h.svc.Process(r.Context(), requestID, actorID)
	})
}

// MarkReady moves a request to ready_for_pickup. Admin only.
func (h *Handler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(r *http.Request, requestID id.RequestID, actorID id.UserID, _ string) (*service.Result, error) {
		return h.svc.MarkReadyForPickup(r.Context(), requestID, actorID)
	})
}

// Complete moves a request to completed. Admin only.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(r *http.Request, requestID id.RequestID, actorID id.UserID, _ string) (*service.Result, error) {
		return h.svc.Complete(r.Context(), requestID, actorID)
	})
}

// Cancel cancels the caller's own request. Client only.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}

	actorID := requestcontext.ActorID(r.Context())
	role := requestcontext.ActorRole(r.Context())
	if actorID.IsNil() || !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if role != id.RecipientClient {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only the requesting client may cancel"))
		return
	}

	result, err := h.svc.CancelByClient(r.Context(), requestID, actorID, optionalReason(r))
	h.writeTransition(w, requestID, result, err)
}

// BulkApply applies one transition to many requests. Admin only. Always
// answers 200: per-item outcomes are in the body.
func (h *Handler) BulkApply(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	body, ok := httputil.Decode[bulkStatusRequest](w, r)
	if !ok {
		return
	}
	if len(body.RequestIDs) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "request_ids must not be empty"))
		return
	}

	newStatus, err := models.ParseStatus(body.Status)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unknown status"))
		return
	}

	requestIDs := make([]id.RequestID, 0, len(body.RequestIDs))
	for _, raw := range body.RequestIDs {
		requestID, err := id.ParseRequestID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		requestIDs = append(requestIDs, requestID)
	}

	result, err := h.svc.BulkApply(r.Context(), requestIDs, newStatus, &actorID, body.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := bulkResponse{Succeeded: []string{}, Failed: []bulkFailureResponse{}}
	for _, requestID := range result.Successes {
		resp.Succeeded = append(resp.Succeeded, requestID.String())
	}
	for _, failure := range result.Failures {
		resp.Failed = append(resp.Failed, bulkFailureResponse{
			RequestID: failure.RequestID.String(),
			Error:     string(dErrors.CodeOf(failure.Err)),
			Message:   dErrors.MessageOf(failure.Err),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request, apply func(*http.Request, id.RequestID, id.UserID, string) (*service.Result, error)) {
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	actorID, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	result, err := apply(r, requestID, actorID, optionalReason(r))
	h.writeTransition(w, requestID, result, err)
}

func (h *Handler) writeTransition(w http.ResponseWriter, requestID id.RequestID, result *service.Result, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transitionResponse{
		RequestID: requestID.String(),
		OldStatus: result.OldStatus.String(),
		NewStatus: result.NewStatus.String(),
	})
}

// optionalReason reads a reason from the body when one was sent. Transitions
// with default reasons accept an empty body.
func optionalReason(r *http.Request) string {
	var body reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Reason
}

func pathRequestID(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RequestID{}, false
	}
	return requestID, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	actorID := requestcontext.ActorID(r.Context())
	role := requestcontext.ActorRole(r.Context())
	if actorID.IsNil() || !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	if role != id.RecipientAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
		return id.UserID{}, false
	}
	return actorID, true
}

func toRequestResponse(req *models.DocumentRequest) requestResponse {
	return requestResponse{
		ID:            req.ID.String(),
		RequestNumber: req.RequestNumber,
		ClientID:      req.ClientID.String(),
		DocumentType:  req.DocumentType,
		Status:        req.Status.String(),
		Priority:      string(req.Priority),
		PaymentStatus: string(req.PaymentStatus),
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}

func toHistoryEntry(rec *models.TransitionRecord) historyEntry {
	entry := historyEntry{
		NewStatus: rec.NewStatus.String(),
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
	if rec.OldStatus != nil {
		old := rec.OldStatus.String()
		entry.OldStatus = &old
	}
	if rec.ActorID != nil {
		actor := rec.ActorID.String()
		entry.ActorID = &actor
	}
	return entry
}
