package util

import (
	"context"
	"net/http"
	"strings"
)

type clientInfoContextKey struct{}

// ClientInfo describes the caller of the current request.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClientInfo resolves the caller IP and user agent once per request and
// stores them in the context for handlers and the audit recorder.
func WithClientInfo(trusted *TrustedProxies, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := ClientInfo{
			IP:        ClientIP(r, trusted),
			UserAgent: strings.TrimSpace(r.UserAgent()),
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClientInfo(r.Context(), info)))
	})
}

// ContextWithClientInfo stores info in ctx.
func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoContextKey{}, info)
}

// ClientInfoFromContext returns the stored caller info, if any.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	if ctx == nil {
		return ClientInfo{}, false
	}
	info, ok := ctx.Value(clientInfoContextKey{}).(ClientInfo)
	return info, ok
}
