package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"groceryapp/pkg/domain"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore("sqlite:file::memory:?_foreign_keys=on", WithLogLevel(gormlogger.Silent))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *GormStore, email string) domain.User {
	t.Helper()
	u, err := s.UpsertUserByEmail(context.Background(), email, "User "+email)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func seedList(t *testing.T, s *GormStore, ownerID, name string) domain.ShoppingList {
	t.Helper()
	list, err := s.CreateShoppingList(context.Background(), domain.ShoppingList{Name: name, CreatedByID: ownerID})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	return list
}

func seedItem(t *testing.T, s *GormStore, listID, name string, priority int, status domain.ItemStatus) domain.GroceryItem {
	t.Helper()
	item, err := s.CreateItem(context.Background(), domain.GroceryItem{
		ShoppingListID: listID,
		Name:           name,
		Quantity:       1,
		Priority:       priority,
		Status:         status,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func TestUpsertUserByEmailKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUserByEmail(ctx, "ann@example.com", "Ann")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertUserByEmail(ctx, "ann@example.com", "Ann B")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable id, got %q then %q", first.ID, second.ID)
	}
	if second.Name != "Ann B" {
		t.Fatalf("expected refreshed name, got %q", second.Name)
	}
	var stored UserModel
	if err := s.db.WithContext(ctx).First(&stored, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if got := userFromModel(stored); got.Email != "ann@example.com" {
		t.Fatalf("unexpected email %q", got.Email)
	}
}

func TestCreateItemAppendsInitialHistory(t *testing.T) {
	s := newTestStore(t)
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")

	item := seedItem(t, s, list.ID, "Milk", 2, domain.StatusRanOut)
	got, ok, err := s.GetItem(context.Background(), item.ID, true)
	if err != nil || !ok {
		t.Fatalf("get item: ok=%v err=%v", ok, err)
	}
	if len(got.History) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(got.History))
	}
	if got.History[0].Status != domain.StatusRanOut {
		t.Fatalf("unexpected history status %q", got.History[0].Status)
	}
}

func TestUpdateItemHistoryOnlyOnStatusChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	item := seedItem(t, s, list.ID, "Eggs", 3, domain.StatusRanOut)

	same := domain.StatusRanOut
	qty := 12
	res, err := s.UpdateItem(ctx, item.ID, ItemPatch{Status: &same, Quantity: &qty})
	if err != nil {
		t.Fatalf("update same status: %v", err)
	}
	if res.StatusChanged {
		t.Fatalf("expected no status change")
	}
	if res.After.Quantity != 12 || res.Before.Quantity != 1 {
		t.Fatalf("unexpected quantities before=%d after=%d", res.Before.Quantity, res.After.Quantity)
	}

	have := domain.StatusHave
	res, err = s.UpdateItem(ctx, item.ID, ItemPatch{Status: &have})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if !res.StatusChanged || res.After.Status != domain.StatusHave {
		t.Fatalf("expected status change to HAVE, got %+v", res)
	}

	history, total, err := s.ListHistory(ctx, item.ID, domain.Page{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if total != 2 || len(history) != 2 {
		t.Fatalf("expected 2 history rows, got total=%d len=%d", total, len(history))
	}
	if history[0].Status != domain.StatusHave {
		t.Fatalf("expected newest first, got %q", history[0].Status)
	}
}

func TestUpdateItemClearsNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	item := seedItem(t, s, list.ID, "Bread", 3, domain.StatusHave)

	note := "sourdough"
	if _, err := s.UpdateItem(ctx, item.ID, ItemPatch{Notes: &note, SetNotes: true}); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	res, err := s.UpdateItem(ctx, item.ID, ItemPatch{SetNotes: true})
	if err != nil {
		t.Fatalf("clear notes: %v", err)
	}
	if res.Before.Notes == nil || *res.Before.Notes != "sourdough" {
		t.Fatalf("expected previous notes, got %v", res.Before.Notes)
	}
	got, _, err := s.GetItem(ctx, item.ID, false)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Notes != nil {
		t.Fatalf("expected notes cleared, got %q", *got.Notes)
	}
}

func TestUpdateItemNotFound(t *testing.T) {
	s := newTestStore(t)
	name := "x"
	if _, err := s.UpdateItem(context.Background(), "missing", ItemPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListItemsFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	other := seedList(t, s, owner.ID, "Other")
	seedItem(t, s, list.ID, "Tomatoes", 2, domain.StatusRanOut)
	seedItem(t, s, list.ID, "Apples", 2, domain.StatusHave)
	seedItem(t, s, list.ID, "Bananas", 1, domain.StatusRanOut)
	seedItem(t, s, list.ID, "100% Juice", 4, domain.StatusRanOut)
	seedItem(t, s, other.ID, "Apples", 1, domain.StatusRanOut)

	items, total, err := s.ListItems(ctx, ItemFilter{ShoppingListID: list.ID, Page: domain.Page{Page: 1, Limit: 10}})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 items, got %d", total)
	}
	want := []string{"Bananas", "Apples", "Tomatoes", "100% Juice"}
	for i, name := range want {
		if items[i].Name != name {
			t.Fatalf("position %d: want %q, got %q", i, name, items[i].Name)
		}
	}

	ranOut := domain.StatusRanOut
	items, total, err = s.ListItems(ctx, ItemFilter{ShoppingListID: list.ID, Status: &ranOut, Page: domain.Page{Page: 1, Limit: 1}})
	if err != nil {
		t.Fatalf("list ranout: %v", err)
	}
	if total != 3 || len(items) != 1 || items[0].Name != "Bananas" {
		t.Fatalf("unexpected ranout page: total=%d items=%+v", total, items)
	}

	items, total, err = s.ListItems(ctx, ItemFilter{ShoppingListID: list.ID, Search: "APP", Page: domain.Page{Page: 1, Limit: 10}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || items[0].Name != "Apples" {
		t.Fatalf("unexpected search result: total=%d items=%+v", total, items)
	}

	items, total, err = s.ListItems(ctx, ItemFilter{ShoppingListID: list.ID, Search: "%", Page: domain.Page{Page: 1, Limit: 10}})
	if err != nil {
		t.Fatalf("search literal percent: %v", err)
	}
	if total != 1 || items[0].Name != "100% Juice" {
		t.Fatalf("expected literal %% match, got total=%d items=%+v", total, items)
	}
}

func TestBulkUpdateStatusSkipsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	a := seedItem(t, s, list.ID, "A", 3, domain.StatusRanOut)
	b := seedItem(t, s, list.ID, "B", 3, domain.StatusHave)

	changed, err := s.BulkUpdateStatus(ctx, []string{a.ID, b.ID, a.ID}, domain.StatusHave)
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(changed) != 1 || changed[0] != a.ID {
		t.Fatalf("expected only %s changed, got %v", a.ID, changed)
	}
	_, totalA, _ := s.ListHistory(ctx, a.ID, domain.Page{Page: 1, Limit: 10})
	_, totalB, _ := s.ListHistory(ctx, b.ID, domain.Page{Page: 1, Limit: 10})
	if totalA != 2 || totalB != 1 {
		t.Fatalf("unexpected history counts a=%d b=%d", totalA, totalB)
	}

	if _, err := s.BulkUpdateStatus(ctx, []string{a.ID, "missing"}, domain.StatusRanOut); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for partial batch, got %v", err)
	}
	got, _, _ := s.GetItem(ctx, a.ID, false)
	if got.Status != domain.StatusHave {
		t.Fatalf("expected batch rolled back, got %q", got.Status)
	}
}

func TestDeleteItemsRemovesHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	a := seedItem(t, s, list.ID, "A", 3, domain.StatusRanOut)
	b := seedItem(t, s, list.ID, "B", 3, domain.StatusRanOut)

	if _, err := s.DeleteItems(ctx, []string{a.ID, "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, ok, _ := s.GetItem(ctx, a.ID, false); !ok {
		t.Fatalf("expected item kept after failed batch")
	}

	deleted, err := s.DeleteItems(ctx, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("delete items: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 deleted, got %d", len(deleted))
	}
	var orphans int64
	if err := s.db.Model(&GroceryItemHistoryModel{}).Count(&orphans).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected history removed, got %d rows", orphans)
	}
}

func TestDeleteItemsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	other := seedList(t, s, owner.ID, "Other")
	seedItem(t, s, list.ID, "A", 3, domain.StatusRanOut)
	seedItem(t, s, list.ID, "B", 3, domain.StatusRanOut)
	keep := seedItem(t, s, list.ID, "C", 3, domain.StatusHave)
	elsewhere := seedItem(t, s, other.ID, "D", 3, domain.StatusRanOut)

	n, err := s.DeleteItemsByStatus(ctx, list.ID, domain.StatusRanOut)
	if err != nil {
		t.Fatalf("delete runout: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok, _ := s.GetItem(ctx, keep.ID, false); !ok {
		t.Fatalf("expected HAVE item kept")
	}
	if _, ok, _ := s.GetItem(ctx, elsewhere.ID, false); !ok {
		t.Fatalf("expected other list untouched")
	}
	n, err = s.DeleteItemsByStatus(ctx, list.ID, domain.StatusRanOut)
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent zero, got n=%d err=%v", n, err)
	}
}

func TestListHistoryMissingItem(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.ListHistory(context.Background(), "missing", domain.Page{Page: 1, Limit: 10}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

var errHistoryWrite = errors.New("history write failed")

// failHistoryWrites makes every insert into grocery_item_histories fail while
// the returned flag is set.
func failHistoryWrites(t *testing.T, s *GormStore) *atomic.Bool {
	t.Helper()
	var enabled atomic.Bool
	err := s.db.Callback().Create().Before("gorm:create").Register("test:fail_history", func(db *gorm.DB) {
		if enabled.Load() && db.Statement.Table == (GroceryItemHistoryModel{}).TableName() {
			_ = db.AddError(errHistoryWrite)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return &enabled
}

func TestHistoryFailureRollsBackItemWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fail := failHistoryWrites(t, s)
	owner := seedUser(t, s, "a@example.com")
	list := seedList(t, s, owner.ID, "Weekly")
	item := seedItem(t, s, list.ID, "Eggs", 3, domain.StatusHave)

	assertUnchanged := func(t *testing.T) {
		t.Helper()
		got, ok, err := s.GetItem(ctx, item.ID, true)
		if err != nil || !ok {
			t.Fatalf("get item: ok=%v err=%v", ok, err)
		}
		if got.Status != domain.StatusHave || got.Name != "Eggs" || len(got.History) != 1 {
			t.Fatalf("expected item untouched, got status=%s name=%s history=%d", got.Status, got.Name, len(got.History))
		}
	}

	fail.Store(true)

	t.Run("update", func(t *testing.T) {
		status := domain.StatusRanOut
		name := "Free-range eggs"
		_, err := s.UpdateItem(ctx, item.ID, ItemPatch{Status: &status, Name: &name})
		if !errors.Is(err, errHistoryWrite) {
			t.Fatalf("expected history error, got %v", err)
		}
		assertUnchanged(t)
	})

	t.Run("bulk status", func(t *testing.T) {
		_, err := s.BulkUpdateStatus(ctx, []string{item.ID}, domain.StatusRanOut)
		if !errors.Is(err, errHistoryWrite) {
			t.Fatalf("expected history error, got %v", err)
		}
		assertUnchanged(t)
	})

	t.Run("create", func(t *testing.T) {
		_, err := s.CreateItem(ctx, domain.GroceryItem{
			ShoppingListID: list.ID,
			Name:           "Milk",
			Quantity:       1,
			Priority:       3,
			Status:         domain.StatusRanOut,
		})
		if !errors.Is(err, errHistoryWrite) {
			t.Fatalf("expected history error, got %v", err)
		}
		items, total, err := s.ListItems(ctx, ItemFilter{ShoppingListID: list.ID, Page: domain.Page{Page: 1, Limit: 10}})
		if err != nil {
			t.Fatalf("list items: %v", err)
		}
		if total != 1 || len(items) != 1 || items[0].ID != item.ID {
			t.Fatalf("expected only the seeded item, got total=%d items=%+v", total, items)
		}
	})

	fail.Store(false)
	status := domain.StatusRanOut
	if _, err := s.UpdateItem(ctx, item.ID, ItemPatch{Status: &status}); err != nil {
		t.Fatalf("update after recovery: %v", err)
	}
	got, _, err := s.GetItem(ctx, item.ID, true)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != domain.StatusRanOut || len(got.History) != 2 {
		t.Fatalf("expected recovered write, got status=%s history=%d", got.Status, len(got.History))
	}
}
