package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"groceryapp/internal/metrics"
	"groceryapp/internal/ratelimit"
	"groceryapp/internal/util"
	"groceryapp/pkg/domain"
	"groceryapp/services/grocery/internal/app"
	"groceryapp/services/grocery/internal/authz"
	"groceryapp/services/grocery/internal/identity"
)

// IdentityResolver turns an Authorization header into a caller identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) (identity.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Resolver       IdentityResolver
	Gate           *authz.Gate
	Auditor        app.Auditor
	Limiter        *ratelimit.FixedWindowLimiter
	Metrics        *metrics.Metrics
	TrustedProxies *util.TrustedProxies
	// Ping reports store health for /healthz; nil skips the check.
	Ping func(ctx context.Context) error
}

// Server exposes the grocery REST API.
type Server struct {
	app      *app.App
	resolver IdentityResolver
	gate     *authz.Gate
	auditor  app.Auditor
	limiter  *ratelimit.FixedWindowLimiter
	metrics  *metrics.Metrics
	trusted  *util.TrustedProxies
	ping     func(ctx context.Context) error
	mux      *http.ServeMux
	rules    []authz.Rule
}

// New constructs the server with routes configured. Every access rule is
// validated here so a bad rule fails startup instead of a request.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("identity resolver required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("access gate required")
	}
	s := &Server{
		app:      cfg.App,
		resolver: cfg.Resolver,
		gate:     cfg.Gate,
		auditor:  cfg.Auditor,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		trusted:  cfg.TrustedProxies,
		ping:     cfg.Ping,
		mux:      http.NewServeMux(),
	}
	s.routes()
	for _, rule := range s.rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("route rule: %w", err)
		}
	}
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithClientInfo(s.trusted,
			util.WithRequestLog("grocery",
				util.WithSecurityHeaders(util.WithCORS(s.withMetrics(s.mux))))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	listRule := authz.Rule{Resource: domain.ResourceShoppingList, From: authz.Path}
	itemRule := authz.Rule{Resource: domain.ResourceGroceryItem, From: authz.Path}
	itemsRule := authz.Rule{Resource: domain.ResourceGroceryItem, Param: "ids", From: authz.BodyArray}
	listQueryRule := authz.Rule{Resource: domain.ResourceShoppingList, Param: "shoppingListId", From: authz.Query}
	listBodyRule := authz.Rule{Resource: domain.ResourceShoppingList, Param: "shoppingListId", From: authz.Body}

	// shopping lists
	s.mux.Handle("POST /api/v1/shopping-lists", s.authenticated(s.handleCreateShoppingList))
	s.mux.Handle("GET /api/v1/shopping-lists", s.authenticated(s.handleListShoppingLists))
	s.mux.Handle("GET /api/v1/shopping-lists/{id}", s.authenticated(s.guard(listRule, s.handleGetShoppingList)))
	s.mux.Handle("PATCH /api/v1/shopping-lists/{id}", s.authenticated(s.guard(listRule, s.handleUpdateShoppingList)))
	s.mux.Handle("DELETE /api/v1/shopping-lists/{id}", s.authenticated(s.guard(listRule, s.handleDeleteShoppingList)))

	// grocery items
	s.mux.Handle("GET /api/v1/grocery", s.authenticated(s.guard(listQueryRule, s.handleListItems)))
	s.mux.Handle("POST /api/v1/grocery", s.authenticated(s.guard(listBodyRule, s.handleCreateItem)))
	s.mux.Handle("DELETE /api/v1/grocery/runout", s.authenticated(s.guard(listQueryRule, s.handleDeleteRanOut)))
	s.mux.Handle("DELETE /api/v1/grocery/bulk", s.authenticated(s.guard(itemsRule, s.handleDeleteItems)))
	s.mux.Handle("POST /api/v1/grocery/bulk-update-status", s.authenticated(s.guard(itemsRule, s.handleBulkUpdateStatus)))
	s.mux.Handle("GET /api/v1/grocery/{id}", s.authenticated(s.guard(itemRule, s.handleGetItem)))
	s.mux.Handle("PUT /api/v1/grocery/{id}", s.authenticated(s.guard(itemRule, s.handleReplaceItem)))
	s.mux.Handle("PATCH /api/v1/grocery/{id}", s.authenticated(s.guard(itemRule, s.handleUpdateItem)))
	s.mux.Handle("DELETE /api/v1/grocery/{id}", s.authenticated(s.guard(itemRule, s.handleDeleteItem)))
	s.mux.Handle("GET /api/v1/grocery/{id}/history", s.authenticated(s.guard(itemRule, s.handleItemHistory)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
