// Package dispatcher turns lifecycle events into notifications: resolve the
// recipients, suppress duplicates, persist one row per recipient, push to live
// connections, and fan out to the best-effort side channels.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	notifmetrics "civicdesk/internal/notification/metrics"
	"civicdesk/internal/notification/models"
	"civicdesk/internal/notification/ports"
	"civicdesk/internal/notification/sse"
	reqmodels "civicdesk/internal/request/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// defaultDedupWindow suppresses identical notifications created in rapid
// succession, as when a bulk apply touches the same recipient repeatedly.
const defaultDedupWindow = 10 * time.Second

// Dispatcher creates and delivers notifications. Persistence is the source of
// truth; push, email, and SMS are delivery hints that may silently fail.
type Dispatcher struct {
	store     ports.Store
	pusher    ports.Pusher
	directory ports.Directory
	requests  ports.RequestReader

	email       ports.EmailSender
	sms         ports.SMSSender
	dedup       ports.DedupGuard
	dedupWindow time.Duration

	metrics *notifmetrics.Metrics
	logger  *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithEmailSender enables the email side channel.
func WithEmailSender(sender ports.EmailSender) Option {
	return func(d *Dispatcher) {
		d.email = sender
	}
}

// WithSMSSender enables the SMS side channel.
func WithSMSSender(sender ports.SMSSender) Option {
	return func(d *Dispatcher) {
		d.sms = sender
	}
}

// WithDedupGuard installs the fast duplicate-suppression path. Without one,
// suppression falls back to a store lookup.
func WithDedupGuard(guard ports.DedupGuard) Option {
	return func(d *Dispatcher) {
		d.dedup = guard
	}
}

// WithDedupWindow overrides the duplicate-suppression window.
func WithDedupWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.dedupWindow = window
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *notifmetrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets a logger for dispatch outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New constructs the dispatcher.
func New(store ports.Store, pusher ports.Pusher, directory ports.Directory, requests ports.RequestReader, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if pusher == nil {
		return nil, fmt.Errorf("pusher is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if requests == nil {
		return nil, fmt.Errorf("request reader is required")
	}
	d := &Dispatcher{
		store:       store,
		pusher:      pusher,
		directory:   directory,
		requests:    requests,
		dedupWindow: defaultDedupWindow,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// draft is a notification before addressing. One draft may become several rows
// when the recipient is a broadcast.
type draft struct {
	Type     models.Type
	Title    string
	Message  string
	Payload  map[string]any
	Priority models.Priority
}

// NotifyNewRequest informs every active admin that a request was submitted.
// Urgent requests are delivered as high priority.
func (d *Dispatcher) NotifyNewRequest(ctx context.Context, requestID id.RequestID) error {
	req, err := d.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}

	priority := models.PriorityNormal
	if req.Priority == reqmodels.PriorityUrgent {
		priority = models.PriorityHigh
	}

	return d.createAndDispatch(ctx, models.AllAdmins(), draft{
		Type:     models.TypeNewRequest,
		Title:    "New document request",
		Message:  fmt.Sprintf("Request %s (%s) was submitted", req.RequestNumber, req.DocumentType),
		Payload:  requestPayload(req),
		Priority: priority,
	})
}

// NotifyStatusChange informs the owning client that their request moved.
// Rejections are delivered as high priority and mirrored to the client's email
// and phone when side channels are configured.
func (d *Dispatcher) NotifyStatusChange(ctx context.Context, requestID id.RequestID, oldStatus, newStatus reqmodels.Status, actorID *id.UserID) error {
	req, err := d.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}

	priority := models.PriorityNormal
	if newStatus == reqmodels.StatusRejected {
		priority = models.PriorityHigh
	}

	payload := requestPayload(req)
	payload["old_status"] = oldStatus.String()
	payload["new_status"] = newStatus.String()
	if actorID != nil {
		payload["actor_id"] = actorID.String()
	}

	message := fmt.Sprintf("Request %s moved from %s to %s", req.RequestNumber, oldStatus.String(), newStatus.String())
	err = d.createAndDispatch(ctx, models.SpecificClient(req.ClientID), draft{
		Type:     models.TypeStatusChange,
		Title:    "Request status updated",
		Message:  message,
		Payload:  payload,
		Priority: priority,
	})
	if err != nil {
		return err
	}

	d.sendSideChannels(ctx, req.ClientID, "Request status updated", message)
	return nil
}

// NotifyCancellation informs every active admin that a client cancelled.
func (d *Dispatcher) NotifyCancellation(ctx context.Context, requestID id.RequestID, clientID id.UserID, oldStatus, newStatus reqmodels.Status, reason string) error {
	req, err := d.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}

	payload := requestPayload(req)
	payload["old_status"] = oldStatus.String()
	payload["client_id"] = clientID.String()
	if reason != "" {
		payload["reason"] = reason
	}

	message := fmt.Sprintf("Request %s was cancelled by the client", req.RequestNumber)
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}

	return d.createAndDispatch(ctx, models.AllAdmins(), draft{
		Type:     models.TypeCancellation,
		Title:    "Request cancelled",
		Message:  message,
		Payload:  payload,
		Priority: models.PriorityNormal,
	})
}

// createAndDispatch expands the recipient, then handles each resulting account
// independently: a failure for one admin never blocks delivery to the rest.
func (d *Dispatcher) createAndDispatch(ctx context.Context, recipient models.Recipient, dr draft) error {
	rtype := recipient.RecipientType()

	if !recipient.IsBroadcast() {
		userID, _ := recipient.UserID()
		return d.dispatchOne(ctx, userID, rtype, dr)
	}

	admins, err := d.directory.ListActiveAdmins(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active admins")
	}

	var errs []error
	for _, adminID := range admins {
		if err := d.dispatchOne(ctx, adminID, rtype, dr); err != nil {
			d.logger.ErrorContext(ctx, "dispatch to admin failed",
				"admin_id", adminID,
				"type", dr.Type,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatchOne suppresses duplicates, persists the row, and pushes it to the
// recipient's live connections.
func (d *Dispatcher) dispatchOne(ctx context.Context, recipientID id.UserID, rtype id.RecipientType, dr draft) error {
	duplicate, err := d.isDuplicate(ctx, recipientID, rtype, dr)
	if err != nil {
		return err
	}
	if duplicate {
		if d.metrics != nil {
			d.metrics.ObserveDedupSuppressed()
		}
		d.logger.DebugContext(ctx, "duplicate notification suppressed",
			"recipient_id", recipientID,
			"type", dr.Type,
		)
		return nil
	}

	rid := recipientID
	n := &models.Notification{
		RecipientID:   &rid,
		RecipientType: rtype,
		Type:          dr.Type,
		Title:         dr.Title,
		Message:       dr.Message,
		Payload:       dr.Payload,
		Priority:      dr.Priority,
	}
	if _, err := d.store.Persist(ctx, n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist notification")
	}
	if d.metrics != nil {
		d.metrics.ObserveCreated(string(dr.Type))
	}

	d.pusher.SendToRecipient(recipientID, sse.EventNotification, n)
	return nil
}

// isDuplicate checks the fast guard first, falling back to a store lookup when
// no guard is configured or the guard is unavailable.
func (d *Dispatcher) isDuplicate(ctx context.Context, recipientID id.UserID, rtype id.RecipientType, dr draft) (bool, error) {
	if d.dedup != nil {
		first, err := d.dedup.FirstSeen(ctx, dedupKey(recipientID, rtype, dr), d.dedupWindow)
		if err == nil {
			return !first, nil
		}
		d.logger.WarnContext(ctx, "dedup guard unavailable, falling back to store",
			"recipient_id", recipientID,
			"error", err,
		)
	}

	since := requestcontext.Now(ctx).Add(-d.dedupWindow)
	exists, err := d.store.RecentExists(ctx, recipientID, rtype, dr.Type, dr.Message, since)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for duplicate notification")
	}
	return exists, nil
}

// sendSideChannels mirrors the notification to email and SMS. Both are best
// effort: failures are logged and counted, never returned.
func (d *Dispatcher) sendSideChannels(ctx context.Context, recipientID id.UserID, subject, message string) {
	if d.email == nil && d.sms == nil {
		return
	}

	contact, err := d.directory.GetContact(ctx, recipientID)
	if err != nil {
		d.logger.WarnContext(ctx, "contact lookup failed, skipping side channels",
			"recipient_id", recipientID,
			"error", err,
		)
		return
	}

	if d.email != nil && contact.Email != "" {
		body := fmt.Sprintf("<p>%s</p>", message)
		if _, err := d.email.Send(ctx, contact.Email, subject, body, message); err != nil {
			if d.metrics != nil {
				d.metrics.ObserveSideChannelFailure("email")
			}
			d.logger.WarnContext(ctx, "email delivery failed",
				"recipient_id", recipientID,
				"error", err,
			)
		}
	}

	if d.sms != nil && contact.Phone != "" {
		if result := d.sms.Send(ctx, []string{contact.Phone}, message); !result.Success {
			if d.metrics != nil {
				d.metrics.ObserveSideChannelFailure("sms")
			}
			d.logger.WarnContext(ctx, "sms delivery failed",
				"recipient_id", recipientID,
				"error", result.Error,
			)
		}
	}
}

func (d *Dispatcher) loadRequest(ctx context.Context, requestID id.RequestID) (*reqmodels.DocumentRequest, error) {
	req, err := d.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request for notification")
	}
	return req, nil
}

func requestPayload(req *reqmodels.DocumentRequest) map[string]any {
	return map[string]any{
		"request_id":     req.ID.String(),
		"request_number": req.RequestNumber,
		"document_type":  req.DocumentType,
	}
}

// dedupKey identifies one logical notification for the fast guard. The message
// is hashed so keys stay bounded regardless of message length.
func dedupKey(recipientID id.UserID, rtype id.RecipientType, dr draft) string {
	h := fnv.New64a()
	h.Write([]byte(dr.Message))
	return fmt.Sprintf("notif:dedup:%s:%s:%s:%x", rtype, recipientID, dr.Type, h.Sum64())
}
