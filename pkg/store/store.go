package store

import (
	"context"
	"errors"

	"groceryapp/pkg/domain"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Store defines persistence operations for users, shopping lists, grocery
// items and their history, ownership lookups, and audit entries.
type Store interface {
	UserStore
	ShoppingListStore
	GroceryStore
	OwnershipStore
	AuditStore
}

// UserStore persists locally known users.
type UserStore interface {
	UpsertUserByEmail(ctx context.Context, email, name string) (domain.User, error)
}

// ShoppingListStore persists shopping lists.
type ShoppingListStore interface {
	CreateShoppingList(ctx context.Context, list domain.ShoppingList) (domain.ShoppingList, error)
	GetShoppingList(ctx context.Context, id string) (domain.ShoppingList, bool, error)
	ListShoppingLists(ctx context.Context, filter ShoppingListFilter) ([]domain.ShoppingList, int64, error)
	UpdateShoppingList(ctx context.Context, id string, patch ShoppingListPatch) (domain.ShoppingList, error)
	DeleteShoppingList(ctx context.Context, id string) (domain.ShoppingList, error)
}

// GroceryStore persists grocery items and their status history. Every
// status-changing write appends a history row inside the same transaction.
type GroceryStore interface {
	CreateItem(ctx context.Context, item domain.GroceryItem) (domain.GroceryItem, error)
	GetItem(ctx context.Context, id string, withHistory bool) (domain.GroceryItem, bool, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.GroceryItem, int64, error)
	UpdateItem(ctx context.Context, id string, patch ItemPatch) (ItemUpdate, error)
	DeleteItems(ctx context.Context, ids []string) ([]domain.GroceryItem, error)
	BulkUpdateStatus(ctx context.Context, ids []string, status domain.ItemStatus) ([]string, error)
	DeleteItemsByStatus(ctx context.Context, shoppingListID string, status domain.ItemStatus) (int64, error)
	ListHistory(ctx context.Context, itemID string, page domain.Page) ([]domain.GroceryItemHistory, int64, error)
}

// OwnershipStore answers ownership questions with single relational lookups.
type OwnershipStore interface {
	ShoppingListOwner(ctx context.Context, listID string) (string, bool, error)
	GroceryItemOwner(ctx context.Context, itemID string) (string, bool, error)
	CountOwnedShoppingLists(ctx context.Context, userID string, ids []string) (int64, error)
	CountOwnedGroceryItems(ctx context.Context, userID string, ids []string) (int64, error)
}

// AuditStore appends audit entries. Entries are never updated.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry domain.AuditLog) error
}

// ShoppingListFilter selects one owner's lists.
type ShoppingListFilter struct {
	OwnerID   string
	Search    string
	SortBy    string // createdAt, updatedAt or name
	SortOrder string // asc or desc
	Page      domain.Page
}

// ShoppingListPatch carries optional field updates; nil means unchanged.
type ShoppingListPatch struct {
	Name     *string
	Notes    *string
	SetNotes bool
}

// ItemFilter selects items of one shopping list.
type ItemFilter struct {
	ShoppingListID string
	Status         *domain.ItemStatus
	Priority       *int
	Search         string
	Page           domain.Page
}

// ItemPatch carries optional field updates; nil means unchanged. Notes is
// only written when SetNotes is true, and a nil Notes then clears the column.
type ItemPatch struct {
	Name     *string
	Quantity *int
	Priority *int
	Status   *domain.ItemStatus
	Notes    *string
	SetNotes bool
}

// ItemUpdate reports the item before and after an update and whether a
// history row was appended.
type ItemUpdate struct {
	Before        domain.GroceryItem
	After         domain.GroceryItem
	StatusChanged bool
}
