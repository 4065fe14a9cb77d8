package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gormlogger "gorm.io/gorm/logger"
	"groceryapp/internal/metrics"
	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
	"groceryapp/services/grocery/internal/audit"
)

type captureAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureAuditor) Record(_ context.Context, e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAuditor) actions() []domain.AuditAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	app     *App
	store   *store.GormStore
	auditor *captureAuditor
	metrics *metrics.Metrics
	owner   domain.User
	list    domain.ShoppingList
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	s, err := store.NewGormStore("sqlite:file::memory:?_foreign_keys=on", store.WithLogLevel(gormlogger.Silent))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	auditor := &captureAuditor{}
	m := metrics.New(prometheus.NewRegistry())
	a, err := New(Config{Store: s, Auditor: auditor, Metrics: m})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()
	owner, err := s.UpsertUserByEmail(ctx, "ann@example.com", "Ann")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	list, err := a.CreateShoppingList(ctx, owner.ID, ShoppingListInput{Name: "Weekly"})
	if err != nil {
		t.Fatalf("seed list: %v", err)
	}
	return testEnv{app: a, store: s, auditor: auditor, metrics: m, owner: owner, list: list}
}

func (e testEnv) createItem(t *testing.T, name string, status domain.ItemStatus) domain.GroceryItem {
	t.Helper()
	raw := string(status)
	item, err := e.app.CreateItem(context.Background(), e.owner.ID, CreateItemInput{
		ShoppingListID: e.list.ID,
		Name:           name,
		Status:         &raw,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return item
}

func (e testEnv) history(t *testing.T, id string) []domain.GroceryItemHistory {
	t.Helper()
	item, err := e.app.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return item.History
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestCreateItemDefaults(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.app.CreateItem(context.Background(), env.owner.ID, CreateItemInput{
		ShoppingListID: env.list.ID,
		Name:           "  Milk  ",
		Notes:          strPtr(""),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Name != "Milk" || item.Status != domain.StatusRanOut || item.Priority != 3 || item.Quantity != 1 || item.Notes != nil {
		t.Fatalf("unexpected defaults %+v", item)
	}
	history := env.history(t, item.ID)
	if len(history) != 1 || history[0].Status != domain.StatusRanOut {
		t.Fatalf("expected initial history row, got %+v", history)
	}
	if got := testutil.ToFloat64(env.metrics.HistoryRowsTotal); got != 1 {
		t.Fatalf("expected 1 history row counted, got %v", got)
	}
	actions := env.auditor.actions()
	if actions[len(actions)-1] != domain.AuditCreate {
		t.Fatalf("expected create audit, got %v", actions)
	}
}

func TestCreateItemValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		in   CreateItemInput
	}{
		{name: "missing list", in: CreateItemInput{Name: "Milk"}},
		{name: "blank name", in: CreateItemInput{ShoppingListID: env.list.ID, Name: "  "}},
		{name: "negative quantity", in: CreateItemInput{ShoppingListID: env.list.ID, Name: "Milk", Quantity: intPtr(-1)}},
		{name: "priority too low", in: CreateItemInput{ShoppingListID: env.list.ID, Name: "Milk", Priority: intPtr(0)}},
		{name: "priority too high", in: CreateItemInput{ShoppingListID: env.list.ID, Name: "Milk", Priority: intPtr(6)}},
		{name: "unknown status", in: CreateItemInput{ShoppingListID: env.list.ID, Name: "Milk", Status: strPtr("GONE")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.app.CreateItem(context.Background(), env.owner.ID, tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStatusChangeAddsExactlyOneHistoryRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Eggs", domain.StatusHave)

	updated, err := env.app.UpdateItem(ctx, env.owner.ID, item.ID, ItemChanges{Status: strPtr("RANOUT")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	history := env.history(t, item.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].Status != updated.Status || updated.Status != domain.StatusRanOut {
		t.Fatalf("newest history %s does not match item status %s", history[0].Status, updated.Status)
	}
	if history[1].Status != domain.StatusHave {
		t.Fatalf("expected initial HAVE last, got %s", history[1].Status)
	}
}

func TestNoOpStatusWritesSkipHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Bread", domain.StatusHave)

	tests := []struct {
		name    string
		changes ItemChanges
	}{
		{name: "same status", changes: ItemChanges{Status: strPtr("HAVE")}},
		{name: "same status lower case", changes: ItemChanges{Status: strPtr("have")}},
		{name: "other fields", changes: ItemChanges{Name: strPtr("Rye bread"), Quantity: intPtr(2), Priority: intPtr(1)}},
		{name: "notes only", changes: ItemChanges{Notes: strPtr("sliced"), NotesSet: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.app.UpdateItem(ctx, env.owner.ID, item.ID, tt.changes); err != nil {
				t.Fatalf("update: %v", err)
			}
			if got := len(env.history(t, item.ID)); got != 1 {
				t.Fatalf("expected history to stay at 1 row, got %d", got)
			}
		})
	}
	got, err := env.app.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Rye bread" || got.Quantity != 2 || got.Priority != 1 || got.Notes == nil || *got.Notes != "sliced" {
		t.Fatalf("unexpected item after updates %+v", got)
	}
}

func TestReplaceItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Rice", domain.StatusHave)
	if _, err := env.app.UpdateItem(ctx, env.owner.ID, item.ID, ItemChanges{Notes: strPtr("basmati"), NotesSet: true}); err != nil {
		t.Fatalf("seed notes: %v", err)
	}

	_, err := env.app.ReplaceItem(ctx, env.owner.ID, item.ID, ItemChanges{Name: strPtr("Rice")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for partial body, got %v", err)
	}

	got, err := env.app.ReplaceItem(ctx, env.owner.ID, item.ID, ItemChanges{
		Name:     strPtr("Brown rice"),
		Quantity: intPtr(3),
		Priority: intPtr(2),
		Status:   strPtr("HAVE"),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got.Name != "Brown rice" || got.Quantity != 3 || got.Priority != 2 || got.Notes != nil {
		t.Fatalf("unexpected replaced item %+v", got)
	}

	_, err = env.app.ReplaceItem(ctx, env.owner.ID, "missing", ItemChanges{
		Name: strPtr("x"), Quantity: intPtr(1), Priority: intPtr(1), Status: strPtr("HAVE"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateAuditCarriesBeforeAndAfter(t *testing.T) {
	env := newTestEnv(t)
	item := env.createItem(t, "Tea", domain.StatusHave)
	if _, err := env.app.UpdateItem(context.Background(), env.owner.ID, item.ID, ItemChanges{Status: strPtr("RANOUT")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	env.auditor.mu.Lock()
	last := env.auditor.entries[len(env.auditor.entries)-1]
	env.auditor.mu.Unlock()
	if last.Action != domain.AuditUpdate || last.EntityID != item.ID || last.UserID != env.owner.ID {
		t.Fatalf("unexpected audit entry %+v", last)
	}
	before, ok := last.OldValue.(domain.GroceryItem)
	if !ok || before.Status != domain.StatusHave {
		t.Fatalf("expected before snapshot with HAVE, got %#v", last.OldValue)
	}
	after, ok := last.NewValue.(domain.GroceryItem)
	if !ok || after.Status != domain.StatusRanOut {
		t.Fatalf("expected after snapshot with RANOUT, got %#v", last.NewValue)
	}
}

func TestDeleteItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keep := env.createItem(t, "Keep", domain.StatusHave)
	drop := env.createItem(t, "Drop", domain.StatusHave)

	err := env.app.DeleteItems(ctx, env.owner.ID, []string{drop.ID, "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.app.GetItem(ctx, drop.ID); err != nil {
		t.Fatalf("expected item kept after failed batch: %v", err)
	}
	if err := env.app.DeleteItems(ctx, env.owner.ID, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty ids, got %v", err)
	}

	if err := env.app.DeleteItem(ctx, env.owner.ID, drop.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.app.GetItem(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted item gone, got %v", err)
	}
	if _, err := env.app.ItemHistory(ctx, drop.ID, domain.Page{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected history gone with item, got %v", err)
	}
	if err := env.app.DeleteItem(ctx, env.owner.ID, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := env.app.GetItem(ctx, keep.ID); err != nil {
		t.Fatalf("expected other item untouched: %v", err)
	}
}

func TestBulkUpdateStatusOnlyChangesDifferingItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i1 := env.createItem(t, "I1", domain.StatusHave)
	i2 := env.createItem(t, "I2", domain.StatusRanOut)

	res, err := env.app.BulkUpdateStatus(ctx, env.owner.ID, []string{i1.ID, i2.ID}, "RANOUT")
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if res.Count != 1 || len(res.IDs) != 1 || res.IDs[0] != i1.ID {
		t.Fatalf("expected only I1 updated, got %+v", res)
	}
	if got := len(env.history(t, i1.ID)); got != 2 {
		t.Fatalf("expected I1 to gain one history row, got %d", got)
	}
	i2History := env.history(t, i2.ID)
	if len(i2History) != 1 || i2History[0].Status != domain.StatusRanOut {
		t.Fatalf("expected I2 untouched, got %+v", i2History)
	}

	res, err = env.app.BulkUpdateStatus(ctx, env.owner.ID, []string{i1.ID, i2.ID}, "RANOUT")
	if err != nil {
		t.Fatalf("second bulk update: %v", err)
	}
	if res.Count != 0 || res.IDs == nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if got := len(env.history(t, i1.ID)); got != 2 {
		t.Fatalf("expected no new history, got %d rows", got)
	}

	if _, err := env.app.BulkUpdateStatus(ctx, env.owner.ID, []string{i1.ID}, "LOST"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad status, got %v", err)
	}
	if _, err := env.app.BulkUpdateStatus(ctx, env.owner.ID, []string{i1.ID, "missing"}, "HAVE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, err := env.app.GetItem(ctx, i1.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusRanOut {
		t.Fatalf("expected rollback to keep RANOUT, got %s", got.Status)
	}
}

func TestDeleteRanOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n, err := env.app.DeleteRanOut(ctx, env.owner.ID, env.list.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 on empty list, got n=%d err=%v", n, err)
	}

	env.createItem(t, "Out1", domain.StatusRanOut)
	env.createItem(t, "Out2", domain.StatusRanOut)
	have := env.createItem(t, "Have", domain.StatusHave)
	other, err := env.app.CreateShoppingList(ctx, env.owner.ID, ShoppingListInput{Name: "Other"})
	if err != nil {
		t.Fatalf("create other list: %v", err)
	}
	otherItem, err := env.app.CreateItem(ctx, env.owner.ID, CreateItemInput{ShoppingListID: other.ID, Name: "Elsewhere"})
	if err != nil {
		t.Fatalf("create other item: %v", err)
	}

	n, err = env.app.DeleteRanOut(ctx, env.owner.ID, env.list.ID)
	if err != nil {
		t.Fatalf("delete ran out: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	page, err := env.app.ListItems(ctx, ItemQuery{ShoppingListID: env.list.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 1 || page.Data[0].ID != have.ID {
		t.Fatalf("expected only HAVE item left, got %+v", page)
	}
	if _, err := env.app.GetItem(ctx, otherItem.ID); err != nil {
		t.Fatalf("expected other list untouched: %v", err)
	}
}

func TestListItemsFiltersAndPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, in := range []CreateItemInput{
		{Name: "Bananas", Priority: intPtr(2)},
		{Name: "apples", Priority: intPtr(2)},
		{Name: "Butter", Priority: intPtr(1), Status: strPtr("HAVE")},
	} {
		in.ShoppingListID = env.list.ID
		if _, err := env.app.CreateItem(ctx, env.owner.ID, in); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := env.app.ListItems(ctx, ItemQuery{ShoppingListID: env.list.ID, Page: domain.Page{Page: 1, Limit: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 3 || page.Meta.TotalPages != 2 || len(page.Data) != 2 || page.Data[0].Name != "Butter" {
		t.Fatalf("unexpected first page %+v", page)
	}

	tests := []struct {
		name  string
		query ItemQuery
		want  int64
	}{
		{name: "status", query: ItemQuery{Status: "ranout"}, want: 2},
		{name: "priority", query: ItemQuery{Priority: "1"}, want: 1},
		{name: "search is case insensitive", query: ItemQuery{Search: "BAN"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.ShoppingListID = env.list.ID
			page, err := env.app.ListItems(ctx, tt.query)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if page.Meta.Total != tt.want {
				t.Fatalf("want %d, got %d", tt.want, page.Meta.Total)
			}
		})
	}

	invalidQueries := []ItemQuery{
		{},
		{ShoppingListID: env.list.ID, Status: "maybe"},
		{ShoppingListID: env.list.ID, Priority: "9"},
		{ShoppingListID: env.list.ID, Priority: "high"},
	}
	for _, q := range invalidQueries {
		if _, err := env.app.ListItems(ctx, q); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", q, err)
		}
	}
}

func TestItemHistoryPaginates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Coffee", domain.StatusHave)
	for _, status := range []string{"RANOUT", "HAVE", "RANOUT"} {
		if _, err := env.app.UpdateItem(ctx, env.owner.ID, item.ID, ItemChanges{Status: strPtr(status)}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	page, err := env.app.ItemHistory(ctx, item.ID, domain.Page{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Meta.Total != 4 || page.Meta.TotalPages != 2 || len(page.Data) != 1 {
		t.Fatalf("unexpected history page %+v", page)
	}
	if page.Data[0].Status != domain.StatusHave {
		t.Fatalf("expected oldest row on last page, got %s", page.Data[0].Status)
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		page, limit string
		want        domain.Page
		wantErr     bool
	}{
		{want: domain.Page{Page: 1, Limit: 10}},
		{page: "3", limit: "100", want: domain.Page{Page: 3, Limit: 100}},
		{page: "0", wantErr: true},
		{page: "x", wantErr: true},
		{limit: "0", wantErr: true},
		{limit: "101", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePage(tt.page, tt.limit)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ParsePage(%q, %q): expected validation error, got %v", tt.page, tt.limit, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParsePage(%q, %q) = %+v, %v", tt.page, tt.limit, got, err)
		}
	}
}

func TestMutationSurvivesCanceledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	item, err := env.app.CreateItem(ctx, env.owner.ID, CreateItemInput{ShoppingListID: env.list.ID, Name: "Salt"})
	if err != nil {
		t.Fatalf("expected write to ignore caller cancellation, got %v", err)
	}
	if _, err := env.app.GetItem(context.Background(), item.ID); err != nil {
		t.Fatalf("expected item stored: %v", err)
	}
}
