package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"groceryapp/internal/util"
	"groceryapp/pkg/domain"
	"groceryapp/services/grocery/internal/audit"
	"groceryapp/services/grocery/internal/authz"
	"groceryapp/services/grocery/internal/identity"
)

type identityHandler func(http.ResponseWriter, *http.Request, identity.Identity)

// authenticated rate limits the caller, resolves the bearer credential with
// the identity provider and attaches the identity to the request context.
func (s *Server) authenticated(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allowRate(w, r) {
			return
		}
		id, err := s.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeIdentityError(w, r, err)
			return
		}
		ctx := identity.WithIdentity(r.Context(), id)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", id.UserID))
		r = r.WithContext(ctx)
		w.Header().Set("X-User-Id", id.UserID)

		if s.auditor != nil {
			s.auditor.Record(ctx, audit.Entry{
				Action:     domain.AuditLogin,
				EntityType: "user",
				EntityID:   id.UserID,
				UserID:     id.UserID,
				Metadata:   map[string]any{"provider": "github", "externalId": id.ExternalID},
			})
		}
		next(w, r, id)
	})
}

// guard runs the ownership check declared by rule before next. The rule is
// collected so New can validate it.
func (s *Server) guard(rule authz.Rule, next identityHandler) identityHandler {
	s.rules = append(s.rules, rule)
	return func(w http.ResponseWriter, r *http.Request, id identity.Identity) {
		if _, err := s.gate.Check(r.Context(), id.UserID, r, rule); err != nil {
			writeGateError(w, r, err)
			return
		}
		next(w, r, id)
	}
}

// allowRate applies the per-client fixed window. A nil limiter disables it.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	key := util.ClientIP(r, s.trusted)
	if info, ok := util.ClientInfoFromContext(r.Context()); ok && info.IP != "" {
		key = info.IP
	}
	decision, err := s.limiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("rate limiter unavailable", "err", err, "allowed", decision.Allowed)
		if !decision.Allowed {
			writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
			return false
		}
		return true
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.Allowed {
		return true
	}
	s.metrics.RateLimited()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// withMetrics records request counts and latency labelled by the matched
// route pattern, which the mux sets on the request.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &util.StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(r.Method, route, rec.StatusCode(), time.Since(start))
	})
}

func writeIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		logger.Warn("authentication failed", "err", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, identity.ErrProviderUnavailable):
		logger.Error("identity provider unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
	default:
		logger.Error("identity resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeGateError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		writeCodedError(w, http.StatusForbidden, "OWNERSHIP_DENIED", denied.Error())
	case errors.Is(err, authz.ErrResourceIDNotFound):
		writeCodedError(w, http.StatusBadRequest, "RESOURCE_ID_MISSING", err.Error())
	case errors.Is(err, authz.ErrBodyTooLarge):
		writeCodedError(w, http.StatusBadRequest, "REQUEST_BODY_TOO_LARGE", err.Error())
	case errors.Is(err, authz.ErrRuleMisconfigured):
		util.LoggerFromContext(r.Context()).Error("access rule misconfigured", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		util.LoggerFromContext(r.Context()).Error("ownership check failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
