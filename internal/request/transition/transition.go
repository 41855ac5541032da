// Package transition decides which status changes are legal. It is a pure
// decision function: no IO, no logging, fully deterministic given its inputs,
// so the whole state machine is unit-testable in isolation.
package transition

import (
	"fmt"

	"civicdesk/internal/request/models"
	dErrors "civicdesk/pkg/domain-errors"
)

// adjacency lists the legal outgoing transitions per status. Terminal states
// (completed, cancelled) have no entry. The approved -> processing edge is
// conditional on cash payment and handled separately in Validate.
var adjacency = map[models.Status][]models.Status{
	models.StatusPending: {
		models.StatusUnderReview,
		models.StatusApproved,
		models.StatusCancelled,
		models.StatusRejected,
	},
	models.StatusUnderReview: {
		models.StatusApproved,
		models.StatusRejected,
		models.StatusCancelled,
	},
	models.StatusApproved: {
		models.StatusPaymentConfirmed,
		models.StatusCancelled,
	},
	models.StatusPaymentConfirmed: {
		models.StatusProcessing,
	},
	models.StatusProcessing: {
		models.StatusReadyForPickup,
	},
	models.StatusReadyForPickup: {
		models.StatusCompleted,
		models.StatusCancelled,
	},
	models.StatusRejected: {
		models.StatusPending,
		models.StatusUnderReview,
	},
}

// cancellable is the authoritative gate for target = cancelled. It overrides
// adjacency in both directions: payment_confirmed may cancel even though its
// adjacency row does not list it, and ready_for_pickup may not even though
// adjacency would allow it.
var cancellable = map[models.Status]bool{
	models.StatusPending:          true,
	models.StatusUnderReview:      true,
	models.StatusApproved:         true,
	models.StatusPaymentConfirmed: true,
}

// InvalidTransitionError reports a (from, to) pair outside the adjacency table.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

// NotCancellableError reports a cancellation attempt from a state outside the
// cancellable set.
type NotCancellableError struct {
	From models.Status
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("request in status %s cannot be cancelled", e.From)
}

// Validate reports whether the transition from -> to is legal given the
// payment context. cashPayment unlocks the approved -> processing shortcut
// that skips payment confirmation.
func Validate(from, to models.Status, cashPayment bool) error {
	if !from.IsValid() || !to.IsValid() {
		return dErrors.Wrap(&InvalidTransitionError{From: from, To: to},
			dErrors.CodeInvalidTransition, "unknown status")
	}

	if to == models.StatusCancelled {
		if !cancellable[from] {
			return dErrors.Wrap(&NotCancellableError{From: from},
				dErrors.CodeNotCancellable, fmt.Sprintf("request in status %s cannot be cancelled", from))
		}
		return nil
	}

	if from == models.StatusApproved && to == models.StatusProcessing && cashPayment {
		return nil
	}

	for _, next := range adjacency[from] {
		if next == to {
			return nil
		}
	}

	return dErrors.Wrap(&InvalidTransitionError{From: from, To: to},
		dErrors.CodeInvalidTransition, fmt.Sprintf("transition from %s to %s is not allowed", from, to))
}
