package middleware

import "context"

type callerKey struct{}

// Caller is the authenticated principal attached by Auth.
type Caller struct {
	UserID string
	Role   string
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the zero Caller for unauthenticated requests.
func CallerFrom(ctx context.Context) Caller {
	if ctx == nil {
		return Caller{}
	}
	caller, _ := ctx.Value(callerKey{}).(Caller)
	return caller
}

func UserIDFromContext(ctx context.Context) string { return CallerFrom(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return CallerFrom(ctx).Role }
