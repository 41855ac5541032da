package sse

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// defaultRetryHint tells clients how long to wait before reconnecting.
const defaultRetryHint = 3 * time.Second

// Handler owns the streaming endpoint. Each request becomes one registry
// connection that lives until the client disconnects or a write fails.
type Handler struct {
	registry          *Registry
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewHandler constructs the streaming handler. heartbeatInterval is the
// keep-alive period for every connection it opens.
func NewHandler(registry *Registry, heartbeatInterval time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		registry:          registry,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// Register mounts the streaming endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications/stream", h.HandleStream)
}

// HandleStream upgrades the request into a long-lived event stream.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actorID := requestcontext.ActorID(ctx)
	role := requestcontext.ActorRole(ctx)
	if actorID.IsNil() || !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	channel := newHTTPChannel(w, flusher)
	channel.advertiseRetry(defaultRetryHint)

	connID, guard := h.registry.AddConnection(actorID, role, channel)
	// Both the deferred removal and a heartbeat failure may race here; the
	// guard makes the second caller a no-op.
	defer h.registry.RemoveConnection(actorID, role, connID, guard)

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.registry.Heartbeat(actorID, role, connID); err != nil {
				h.logger.DebugContext(ctx, "heartbeat failed, closing stream",
					"connection_id", connID,
					"error", err,
				)
				return
			}
		}
	}
}

// httpChannel adapts an http.ResponseWriter into a Channel. Writes are
// serialized: the dispatcher and the heartbeat ticker send concurrently.
type httpChannel struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newHTTPChannel(w http.ResponseWriter, flusher http.Flusher) *httpChannel {
	return &httpChannel{w: w, flusher: flusher}
}

// advertiseRetry emits the reconnect hint once at connection open.
func (c *httpChannel) advertiseRetry(after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "retry: %d\n\n", after.Milliseconds())
	c.flusher.Flush()
}

// Send writes one frame in text/event-stream format and flushes it.
func (c *httpChannel) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "id: %d\nevent: %s\ndata: %s\n\n", frame.ID, frame.Event, frame.Data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
