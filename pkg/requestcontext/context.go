// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here for values that are set
// by middleware but consumed by services. Keeping this package free of
// net/http dependencies lets services import only what they need.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, userID, role)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "civicdesk/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	actorRoleKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// ActorID retrieves the authenticated account ID from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.UserID {
	if actorID, ok := ctx.Value(actorIDKey{}).(id.UserID); ok {
		return actorID
	}
	return id.UserID{}
}

// ActorRole retrieves the authenticated account's role from the context.
// Returns the empty RecipientType if not set.
func ActorRole(ctx context.Context) id.RecipientType {
	if role, ok := ctx.Value(actorRoleKey{}).(id.RecipientType); ok {
		return role
	}
	return ""
}

// WithActor injects the authenticated account and its role into the context.
func WithActor(ctx context.Context, actorID id.UserID, role id.RecipientType) context.Context {
	ctx = context.WithValue(ctx, actorIDKey{}, actorID)
	return context.WithValue(ctx, actorRoleKey{}, role)
}

// RequestID retrieves the correlation ID assigned to the HTTP request.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped clock if one was injected, else time.Now().
// Tests use WithTime to pin the clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped clock. Middleware sets this once per
// request so every store sees the same instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
