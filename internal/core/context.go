package core

import "context"

type contextKey string

const (
	ctxKeyClientID contextKey = "client_id"
)

// ContextWithClientID attaches the workflow owner to ctx.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ctxKeyClientID, clientID)
}

// ClientIDFromContext extracts the workflow owner from ctx.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientID).(string); ok {
		return v
	}
	return ""
}
