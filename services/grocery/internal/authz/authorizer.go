package authz

import (
	"context"
	"fmt"

	"groceryapp/internal/metrics"
	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
)

// Authorizer answers ownership questions. Lists are owned by their creator;
// items are owned by the owner of their parent list.
type Authorizer struct {
	store   store.OwnershipStore
	metrics *metrics.Metrics
}

// NewAuthorizer constructs an Authorizer. m may be nil.
func NewAuthorizer(s store.OwnershipStore, m *metrics.Metrics) *Authorizer {
	return &Authorizer{store: s, metrics: m}
}

// CheckOwnership reports whether userID owns the resource. An unknown resource
// type or a missing resource is a denial, not an error.
func (a *Authorizer) CheckOwnership(ctx context.Context, userID, resourceID string, resourceType domain.ResourceType) (bool, error) {
	var (
		owner string
		found bool
		err   error
	)
	switch resourceType {
	case domain.ResourceShoppingList:
		owner, found, err = a.store.ShoppingListOwner(ctx, resourceID)
	case domain.ResourceGroceryItem:
		owner, found, err = a.store.GroceryItemOwner(ctx, resourceID)
	default:
		a.metrics.OwnershipCheck(string(resourceType), "single", "deny")
		return false, nil
	}
	if err != nil {
		a.metrics.OwnershipCheck(string(resourceType), "single", "error")
		return false, fmt.Errorf("check %s ownership: %w", resourceType, err)
	}
	allowed := found && userID != "" && owner == userID
	a.metrics.OwnershipCheck(string(resourceType), "single", outcome(allowed))
	return allowed, nil
}

// CheckBulkOwnership reports whether userID owns every id. An empty set is
// allowed. Duplicates are counted once, and one counting query decides the
// whole batch, so a missing or foreign id denies all of it.
func (a *Authorizer) CheckBulkOwnership(ctx context.Context, userID string, ids []string, resourceType domain.ResourceType) (bool, error) {
	distinct := distinctIDs(ids)
	if len(distinct) == 0 {
		a.metrics.OwnershipCheck(string(resourceType), "bulk", "allow")
		return true, nil
	}
	var (
		owned int64
		err   error
	)
	switch resourceType {
	case domain.ResourceShoppingList:
		owned, err = a.store.CountOwnedShoppingLists(ctx, userID, distinct)
	case domain.ResourceGroceryItem:
		owned, err = a.store.CountOwnedGroceryItems(ctx, userID, distinct)
	default:
		a.metrics.OwnershipCheck(string(resourceType), "bulk", "deny")
		return false, nil
	}
	if err != nil {
		a.metrics.OwnershipCheck(string(resourceType), "bulk", "error")
		return false, fmt.Errorf("check bulk %s ownership: %w", resourceType, err)
	}
	allowed := userID != "" && owned == int64(len(distinct))
	a.metrics.OwnershipCheck(string(resourceType), "bulk", outcome(allowed))
	return allowed, nil
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// distinctIDs keeps first-seen order. Blank ids are kept so that they fail to
// match and deny the batch.
func distinctIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
