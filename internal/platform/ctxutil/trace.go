package ctxutil

import "context"

type traceDataKey struct{}
type authDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// AuthData carries the caller identity resolved by the auth middleware.
// Enforced is set whenever token verification is configured, so an empty
// UserID with Enforced means a verified-anonymous caller. A nil value means
// verification is off.
type AuthData struct {
	UserID   string
	Enforced bool
}

func WithAuthData(ctx context.Context, ad *AuthData) context.Context {
	return context.WithValue(ctx, authDataKey{}, ad)
}

func GetAuthData(ctx context.Context) *AuthData {
	if ad, ok := ctx.Value(authDataKey{}).(*AuthData); ok {
		return ad
	}
	return nil
}

// UserID returns the authenticated user id or "".
func UserID(ctx context.Context) string {
	if ad := GetAuthData(ctx); ad != nil {
		return ad.UserID
	}
	return ""
}

// AuthEnforced reports whether the request passed through token verification.
// When it is false no identity can be trusted, including one in the body.
func AuthEnforced(ctx context.Context) bool {
	ad := GetAuthData(ctx)
	return ad != nil && ad.Enforced
}
