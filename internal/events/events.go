// Package events defines the transition events published to Kafka for
// downstream consumers (reporting, archiving). Events are written to an
// outbox table in the same transaction as the status change, then drained by
// a background worker, so the stream is at-least-once and never lies about
// what was committed.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic is the Kafka topic transition events are published to.
const Topic = "document.request.events"

// TransitionEvent mirrors one request_transitions row. Field names are part
// of the wire contract with consumers.
type TransitionEvent struct {
	ID            uuid.UUID `json:"id"`
	RequestID     string    `json:"request_id"`
	RequestNumber string    `json:"request_number"`
	OldStatus     *int      `json:"old_status,omitempty"`
	NewStatus     int       `json:"new_status"`
	ActorID       *string   `json:"actor_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
