package middleware

import (
	"context"

	"github.com/saffronhouse/orders-backend/pkg/enums"
)

type contextKey int

const (
	ctxStaffID contextKey = iota
	ctxRole
	ctxRequestID
)

func value[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

func StaffIDFromContext(ctx context.Context) string {
	return value[string](ctx, ctxStaffID)
}

func RoleFromContext(ctx context.Context) enums.StaffRole {
	return value[enums.StaffRole](ctx, ctxRole)
}

// RequestIDFromContext returns the id set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return value[string](ctx, ctxRequestID)
}

// WithStaff injects the authenticated staff member into the context.
func WithStaff(ctx context.Context, staffID string, role enums.StaffRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxStaffID, staffID)
	return context.WithValue(ctx, ctxRole, role)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}
