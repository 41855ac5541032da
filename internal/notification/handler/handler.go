// Package handler exposes the notification inbox over HTTP. Every route
// derives its recipient from the authenticated actor; there is no way to read
// or mutate another account's rows.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/notification/models"
	"civicdesk/internal/notification/ports"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"
)

// Handler serves the notification inbox routes.
type Handler struct {
	store ports.Store
}

// New constructs the inbox handler.
func New(store ports.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts the inbox routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/unread-count", h.UnreadCount)
		r.Post("/{notificationID}/read", h.MarkRead)
		r.Post("/read-all", h.MarkAllRead)
	})
}

type listResponse struct {
	Items []*models.Notification `json:"items"`
	Page  models.Page            `json:"pagination"`
}

// List returns one page of the caller's inbox, newest first. Supports
// ?page, ?limit, and ?unread_only=true.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	recipientID, recipientType, ok := actor(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	items, pagination, err := h.store.Query(r.Context(), recipientID, recipientType, page, limit, unreadOnly)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query notifications"))
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: items, Page: pagination})
}

// UnreadCount returns the caller's badge count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	recipientID, recipientType, ok := actor(w, r)
	if !ok {
		return
	}

	count, err := h.store.UnreadCount(r.Context(), recipientID, recipientType)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count unread notifications"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

// MarkRead marks one of the caller's notifications as read. A row the caller
// cannot see answers not_found, the same as a row that does not exist.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipientID, recipientType, ok := actor(w, r)
	if !ok {
		return
	}

	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "notificationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.store.MarkRead(r.Context(), notificationID, recipientID, recipientType); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "notification not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"read": true})
}

// MarkAllRead marks every unread notification visible to the caller.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipientID, recipientType, ok := actor(w, r)
	if !ok {
		return
	}

	changed, err := h.store.MarkAllRead(r.Context(), recipientID, recipientType)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notifications read"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"marked_read": changed})
}

// actor pulls the authenticated recipient out of the request, writing the
// unauthorized envelope itself when missing.
func actor(w http.ResponseWriter, r *http.Request) (id.UserID, id.RecipientType, bool) {
	actorID := requestcontext.ActorID(r.Context())
	role := requestcontext.ActorRole(r.Context())
	if actorID.IsNil() || !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, "", false
	}
	return actorID, role, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
