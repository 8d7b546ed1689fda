package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	sessiondomain "credential-authority/internal/session/domain"
)

type contextKey struct{ name string }

var (
	accountIDKey = contextKey{"account_id"}
	tokenKey     = contextKey{"token"}
)

// WithAccount returns a context carrying the authenticated account id and the bearer token
// it was derived from.
func WithAccount(ctx context.Context, accountID, token string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	return context.WithValue(ctx, tokenKey, token)
}

// GetAccountID returns the account_id from context and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	return v, ok
}

const bearerPrefix = "bearer "

// BearerToken returns the token set by AuthUnary, or the Bearer token from the
// authorization metadata, or "" if missing or malformed.
func BearerToken(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok && v != "" {
		return v
	}
	v := firstMD(ctx, "authorization")
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if s := firstMD(ctx, "x-forwarded-for"); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := firstMD(ctx, "x-real-ip"); s != "" {
		return s
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent reads the caller's user agent. The gateway forwards the raw header as
// user-agent and its parsed parts as x-client-browser, x-client-os and x-client-device.
func UserAgent(ctx context.Context) sessiondomain.UserAgent {
	return sessiondomain.UserAgent{
		Raw:     firstMD(ctx, "user-agent"),
		Browser: firstMD(ctx, "x-client-browser"),
		OS:      firstMD(ctx, "x-client-os"),
		Device:  firstMD(ctx, "x-client-device"),
	}
}

func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
