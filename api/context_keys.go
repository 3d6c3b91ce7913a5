package api

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

const (
	// ContextKeyUserID stores the authenticated user's id (uuid.UUID)
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyEmail stores the authenticated user's email (string)
	ContextKeyEmail contextKey = "email"

	// ContextKeyAuthority stores the authenticated user's authority (string)
	ContextKeyAuthority contextKey = "authority"

	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyTraceStart stores the request start time (time.Time)
	ContextKeyTraceStart contextKey = "trace_start"
)

// GetUserID extracts the authenticated user id from the context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return id, ok
}

// GetEmail extracts the authenticated user's email from the context.
func GetEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(ContextKeyEmail).(string)
	return email, ok
}

// GetAuthority extracts the authenticated user's authority from the context.
func GetAuthority(ctx context.Context) (string, bool) {
	authority, ok := ctx.Value(ContextKeyAuthority).(string)
	return authority, ok
}

// GetRequestID extracts the request id, or "" when none was assigned.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithTraceStart returns a copy of ctx carrying the request start time.
func WithTraceStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyTraceStart, start)
}

// withPrincipal stores the authenticated identity.
func withPrincipal(ctx context.Context, userID uuid.UUID, email, authority string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, ContextKeyEmail, email)
	return context.WithValue(ctx, ContextKeyAuthority, authority)
}
