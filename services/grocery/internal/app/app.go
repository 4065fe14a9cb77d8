package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"groceryapp/internal/metrics"
	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
	"groceryapp/services/grocery/internal/audit"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	MaxListNameLength  = 100
	MaxListNotesLength = 500
)

// Audit entity types.
const (
	EntityShoppingList = string(domain.ResourceShoppingList)
	EntityGroceryItem  = string(domain.ResourceGroceryItem)
)

// Auditor records audit entries. *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Config holds the dependencies of the application service.
type Config struct {
	Store   store.Store
	Auditor Auditor
	Metrics *metrics.Metrics
}

// App implements the shopping-list and grocery item operations. Callers are
// expected to have passed the ownership gate already.
type App struct {
	store   store.Store
	auditor Auditor
	metrics *metrics.Metrics
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	return &App{
		store:   cfg.Store,
		auditor: cfg.Auditor,
		metrics: cfg.Metrics,
	}, nil
}

// ParsePage validates raw page and limit query values. Empty values take the
// defaults.
func ParsePage(rawPage, rawLimit string) (domain.Page, error) {
	p := domain.Page{Page: DefaultPage, Limit: DefaultLimit}
	if v := strings.TrimSpace(rawPage); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return domain.Page{}, invalid("page must be an integer >= 1")
		}
		p.Page = n
	}
	if v := strings.TrimSpace(rawLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return domain.Page{}, invalid("limit must be an integer between 1 and %d", MaxLimit)
		}
		p.Limit = n
	}
	return p, nil
}

// Paged is one page of results with its pagination envelope.
type Paged[T any] struct {
	Data []T             `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

func newPaged[T any](data []T, total int64, p domain.Page) Paged[T] {
	if data == nil {
		data = []T{}
	}
	return Paged[T]{Data: data, Meta: domain.NewPageMeta(total, p)}
}

func (a *App) record(ctx context.Context, e audit.Entry) {
	if a.auditor == nil {
		return
	}
	a.auditor.Record(ctx, e)
}

// mutationContext keeps a write running when the caller goes away.
func mutationContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
