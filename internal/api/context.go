package api

import "context"

type ctxKey int

const (
	principalKey ctxKey = iota
	requestMetaKey
)

// Principal is the caller resolved from the bearer token.
type Principal struct {
	TenantID string
	UserID   string
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	if meta, ok := ctx.Value(requestMetaKey).(*requestMeta); ok {
		meta.tenantID = p.TenantID
		meta.userID = p.UserID
	}
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// requestMeta is filled in by inner middleware so the access log, which
// wraps everything, can report who made the request.
type requestMeta struct {
	requestID string
	tenantID  string
	userID    string
	err       error
}
