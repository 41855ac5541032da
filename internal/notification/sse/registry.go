// Package sse owns live push delivery: the connection registry and the
// streaming HTTP endpoint that feeds it. Connections are ephemeral and never
// persisted; everything here must tolerate concurrent connect, disconnect,
// and send from independent network sessions.
package sse

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	notifmetrics "civicdesk/internal/notification/metrics"
	id "civicdesk/pkg/domain"
)

// Frame is one unit on the push wire. IDs increase monotonically per
// connection so clients can detect gaps after a reconnect.
type Frame struct {
	ID    uint64
	Event string
	Data  []byte
}

// Event names on the push wire.
const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventNotification = "notification"
)

// Channel is the delivery side of one live connection. Send must be safe for
// concurrent use; an error marks the channel dead.
type Channel interface {
	Send(frame Frame) error
}

// Guard is the one-shot removal token returned at registration. Whichever of
// the racing teardown paths (client close, server abort, heartbeat failure)
// flips it first performs the removal; the others no-op.
type Guard struct {
	removed atomic.Bool
}

// claim returns true exactly once.
func (g *Guard) claim() bool {
	return g.removed.CompareAndSwap(false, true)
}

type conn struct {
	id        id.ConnectionID
	recipient id.UserID
	rtype     id.RecipientType
	channel   Channel
	guard     *Guard
	frameSeq  atomic.Uint64
}

func (c *conn) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.channel.Send(Frame{ID: c.frameSeq.Add(1), Event: event, Data: data})
}

// Registry tracks live push connections per recipient. It is owned by the
// process and injected wherever needed; there is no package-level state.
type Registry struct {
	mu      sync.RWMutex
	clients map[id.UserID]map[id.ConnectionID]*conn
	admins  map[id.UserID]map[id.ConnectionID]*conn

	logger  *slog.Logger
	metrics *notifmetrics.Metrics
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets a logger for connection lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *notifmetrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry constructs an empty connection registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clients: make(map[id.UserID]map[id.ConnectionID]*conn),
		admins:  make(map[id.UserID]map[id.ConnectionID]*conn),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) bucket(rtype id.RecipientType) map[id.UserID]map[id.ConnectionID]*conn {
	if rtype == id.RecipientAdmin {
		return r.admins
	}
	return r.clients
}

// AddConnection registers a live channel and sends the opening `connected`
// frame. The returned guard belongs to the caller's session and makes
// removal idempotent.
func (r *Registry) AddConnection(recipientID id.UserID, rtype id.RecipientType, channel Channel) (id.ConnectionID, *Guard) {
	c := &conn{
		id:        id.NewConnectionID(),
		recipient: recipientID,
		rtype:     rtype,
		channel:   channel,
		guard:     &Guard{},
	}

	r.mu.Lock()
	bucket := r.bucket(rtype)
	if bucket[recipientID] == nil {
		bucket[recipientID] = make(map[id.ConnectionID]*conn)
	}
	bucket[recipientID][c.id] = c
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveConnectionOpened(string(rtype))
	}
	r.logger.Debug("push connection added",
		"recipient_id", recipientID,
		"recipient_type", rtype,
		"connection_id", c.id,
	)

	// Best effort: a dead channel will be pruned on first real send or
	// heartbeat.
	if err := c.send(EventConnected, map[string]string{"connection_id": c.id.String()}); err != nil {
		r.logger.Debug("connected frame failed", "connection_id", c.id, "error", err)
	}
	return c.id, c.guard
}

// RemoveConnection tears down a connection. Safe to call more than once for
// the same logical connection: the guard ensures only the first caller
// performs the removal.
func (r *Registry) RemoveConnection(recipientID id.UserID, rtype id.RecipientType, connID id.ConnectionID, guard *Guard) {
	if guard == nil || !guard.claim() {
		return
	}

	r.mu.Lock()
	bucket := r.bucket(rtype)
	if conns := bucket[recipientID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(bucket, recipientID)
		}
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveConnectionClosed(string(rtype))
	}
	r.logger.Debug("push connection removed",
		"recipient_id", recipientID,
		"recipient_type", rtype,
		"connection_id", connID,
	)
}

// SendToRecipient writes the payload to every live channel of the recipient,
// in whichever bucket it lives. A failed channel is pruned but neither stops
// delivery to the recipient's other channels nor surfaces to the caller.
// Returns the number of channels written.
func (r *Registry) SendToRecipient(recipientID id.UserID, event string, payload any) int {
	r.mu.RLock()
	conns := appendConns(nil, r.clients[recipientID], r.admins[recipientID])
	r.mu.RUnlock()
	return r.deliver(conns, event, payload)
}

// SendToAllAdmins writes the payload to every live admin channel.
func (r *Registry) SendToAllAdmins(event string, payload any) int {
	r.mu.RLock()
	var conns []*conn
	for _, perAdmin := range r.admins {
		conns = appendConns(conns, perAdmin)
	}
	r.mu.RUnlock()
	return r.deliver(conns, event, payload)
}

// BroadcastAll writes the payload to every live channel of every recipient.
func (r *Registry) BroadcastAll(event string, payload any) int {
	r.mu.RLock()
	var conns []*conn
	for _, perUser := range r.clients {
		conns = appendConns(conns, perUser)
	}
	for _, perUser := range r.admins {
		conns = appendConns(conns, perUser)
	}
	r.mu.RUnlock()
	return r.deliver(conns, event, payload)
}

// Heartbeat sends a keep-alive frame on one connection. On failure the
// connection is pruned and the error returned so the owning session can end.
func (r *Registry) Heartbeat(recipientID id.UserID, rtype id.RecipientType, connID id.ConnectionID) error {
	r.mu.RLock()
	var target *conn
	if conns := r.bucket(rtype)[recipientID]; conns != nil {
		target = conns[connID]
	}
	r.mu.RUnlock()
	if target == nil {
		return nil
	}

	if err := target.send(EventHeartbeat, map[string]string{"status": "alive"}); err != nil {
		r.RemoveConnection(recipientID, rtype, connID, target.guard)
		return err
	}
	return nil
}

// ConnectionCount reports the number of live connections for a recipient.
func (r *Registry) ConnectionCount(recipientID id.UserID, rtype id.RecipientType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bucket(rtype)[recipientID])
}

func (r *Registry) deliver(conns []*conn, event string, payload any) int {
	delivered := 0
	for _, c := range conns {
		if err := c.send(event, payload); err != nil {
			r.logger.Debug("push send failed, pruning connection",
				"recipient_id", c.recipient,
				"connection_id", c.id,
				"error", err,
			)
			r.RemoveConnection(c.recipient, c.rtype, c.id, c.guard)
			continue
		}
		delivered++
	}
	if r.metrics != nil && delivered > 0 {
		r.metrics.ObservePushed(event, delivered)
	}
	return delivered
}

// appendConns copies the values of each map into dst. Callers snapshot under
// the read lock and deliver outside it.
func appendConns(dst []*conn, maps ...map[id.ConnectionID]*conn) []*conn {
	for _, m := range maps {
		for _, c := range m {
			dst = append(dst, c)
		}
	}
	return dst
}
