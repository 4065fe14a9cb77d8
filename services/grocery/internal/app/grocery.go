package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"groceryapp/internal/util"
	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
	"groceryapp/services/grocery/internal/audit"
)

// ItemQuery filters the items of one shopping list. Status and Priority are
// raw query values; empty means no filter.
type ItemQuery struct {
	ShoppingListID string
	Status         string
	Priority       string
	Search         string
	Page           domain.Page
}

// CreateItemInput describes a new grocery item. Nil fields take defaults.
type CreateItemInput struct {
	ShoppingListID string
	Name           string
	Quantity       *int
	Priority       *int
	Status         *string
	Notes          *string
}

// ItemChanges carries the fields of an update request. Notes is only applied
// when NotesSet is true; a nil or empty Notes then clears it.
type ItemChanges struct {
	Name     *string
	Quantity *int
	Priority *int
	Status   *string
	Notes    *string
	NotesSet bool
}

// BulkStatusResult reports which items a bulk status update changed.
type BulkStatusResult struct {
	Count int      `json:"count"`
	IDs   []string `json:"updatedIds"`
}

// ListItems returns one page of a list's items ordered by priority then name.
func (a *App) ListItems(ctx context.Context, q ItemQuery) (Paged[domain.GroceryItem], error) {
	listID := strings.TrimSpace(q.ShoppingListID)
	if listID == "" {
		return Paged[domain.GroceryItem]{}, invalid("shoppingListId is required")
	}
	filter := store.ItemFilter{
		ShoppingListID: listID,
		Search:         strings.TrimSpace(q.Search),
		Page:           normalizePage(q.Page),
	}
	if raw := strings.TrimSpace(q.Status); raw != "" {
		status, ok := domain.ParseItemStatus(raw)
		if !ok {
			return Paged[domain.GroceryItem]{}, invalid("status must be HAVE or RANOUT")
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(q.Priority); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil || !validPriority(priority) {
			return Paged[domain.GroceryItem]{}, invalid("priority must be an integer between %d and %d", domain.MinPriority, domain.MaxPriority)
		}
		filter.Priority = &priority
	}
	items, total, err := a.store.ListItems(ctx, filter)
	if err != nil {
		return Paged[domain.GroceryItem]{}, fmt.Errorf("list items: %w", err)
	}
	return newPaged(items, total, filter.Page), nil
}

// GetItem returns an item with its full history, newest first.
func (a *App) GetItem(ctx context.Context, id string) (domain.GroceryItem, error) {
	item, ok, err := a.store.GetItem(ctx, id, true)
	if err != nil {
		return domain.GroceryItem{}, fmt.Errorf("get item: %w", err)
	}
	if !ok {
		return domain.GroceryItem{}, itemNotFound(id)
	}
	return item, nil
}

// CreateItem stores a new item and its initial history row.
func (a *App) CreateItem(ctx context.Context, userID string, in CreateItemInput) (domain.GroceryItem, error) {
	item := domain.GroceryItem{
		ShoppingListID: strings.TrimSpace(in.ShoppingListID),
		Name:           strings.TrimSpace(in.Name),
		Quantity:       domain.DefaultQuantity,
		Priority:       domain.DefaultPriority,
		Status:         domain.StatusRanOut,
		Notes:          normalizeNotes(in.Notes),
	}
	if item.ShoppingListID == "" {
		return domain.GroceryItem{}, invalid("shoppingListId is required")
	}
	if item.Name == "" {
		return domain.GroceryItem{}, invalid("name is required")
	}
	if in.Quantity != nil {
		if *in.Quantity < 0 {
			return domain.GroceryItem{}, invalid("quantity must be >= 0")
		}
		item.Quantity = *in.Quantity
	}
	if in.Priority != nil {
		if !validPriority(*in.Priority) {
			return domain.GroceryItem{}, invalid("priority must be between %d and %d", domain.MinPriority, domain.MaxPriority)
		}
		item.Priority = *in.Priority
	}
	if in.Status != nil {
		status, ok := domain.ParseItemStatus(*in.Status)
		if !ok {
			return domain.GroceryItem{}, invalid("status must be HAVE or RANOUT")
		}
		item.Status = status
	}

	ctx = mutationContext(ctx)
	created, err := a.store.CreateItem(ctx, item)
	if err != nil {
		return domain.GroceryItem{}, fmt.Errorf("create item: %w", err)
	}
	a.metrics.HistoryRows(1)
	a.record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: EntityGroceryItem,
		EntityID:   created.ID,
		UserID:     userID,
		NewValue:   created,
	})
	return created, nil
}

// ReplaceItem applies a full update: name, quantity, priority and status are
// required and notes not supplied are cleared.
func (a *App) ReplaceItem(ctx context.Context, userID, id string, in ItemChanges) (domain.GroceryItem, error) {
	switch {
	case in.Name == nil:
		return domain.GroceryItem{}, invalid("name is required")
	case in.Quantity == nil:
		return domain.GroceryItem{}, invalid("quantity is required")
	case in.Priority == nil:
		return domain.GroceryItem{}, invalid("priority is required")
	case in.Status == nil:
		return domain.GroceryItem{}, invalid("status is required")
	}
	in.NotesSet = true
	return a.UpdateItem(ctx, userID, id, in)
}

// UpdateItem applies the supplied fields. A history row is written only when
// the status actually changes.
func (a *App) UpdateItem(ctx context.Context, userID, id string, in ItemChanges) (domain.GroceryItem, error) {
	patch, err := itemPatch(in)
	if err != nil {
		return domain.GroceryItem{}, err
	}
	ctx = mutationContext(ctx)
	res, err := a.store.UpdateItem(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.GroceryItem{}, itemNotFound(id)
		}
		return domain.GroceryItem{}, fmt.Errorf("update item: %w", err)
	}
	if res.StatusChanged {
		a.metrics.HistoryRows(1)
		util.LoggerFromContext(ctx).Debug("item status changed",
			"item_id", id,
			"from", res.Before.Status,
			"to", res.After.Status,
		)
	}
	a.record(ctx, audit.Entry{
		Action:     domain.AuditUpdate,
		EntityType: EntityGroceryItem,
		EntityID:   id,
		UserID:     userID,
		OldValue:   res.Before,
		NewValue:   res.After,
	})
	return res.After, nil
}

// DeleteItem removes one item and its history.
func (a *App) DeleteItem(ctx context.Context, userID, id string) error {
	ctx = mutationContext(ctx)
	deleted, err := a.store.DeleteItems(ctx, []string{id})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return itemNotFound(id)
		}
		return fmt.Errorf("delete item: %w", err)
	}
	a.recordDeletes(ctx, userID, deleted)
	return nil
}

// DeleteItems removes every listed item or none of them.
func (a *App) DeleteItems(ctx context.Context, userID string, ids []string) error {
	if err := validateIDs(ids); err != nil {
		return err
	}
	ctx = mutationContext(ctx)
	deleted, err := a.store.DeleteItems(ctx, ids)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: one or more grocery items not found", ErrNotFound)
		}
		return fmt.Errorf("delete items: %w", err)
	}
	a.recordDeletes(ctx, userID, deleted)
	return nil
}

// BulkUpdateStatus sets status on every listed item. Items already in that
// status are left untouched and get no history row.
func (a *App) BulkUpdateStatus(ctx context.Context, userID string, ids []string, rawStatus string) (BulkStatusResult, error) {
	if err := validateIDs(ids); err != nil {
		return BulkStatusResult{}, err
	}
	status, ok := domain.ParseItemStatus(rawStatus)
	if !ok {
		return BulkStatusResult{}, invalid("status must be HAVE or RANOUT")
	}
	ctx = mutationContext(ctx)
	changed, err := a.store.BulkUpdateStatus(ctx, ids, status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return BulkStatusResult{}, fmt.Errorf("%w: one or more grocery items not found", ErrNotFound)
		}
		return BulkStatusResult{}, fmt.Errorf("bulk update status: %w", err)
	}
	if changed == nil {
		changed = []string{}
	}
	a.metrics.HistoryRows(len(changed))
	if len(changed) > 0 {
		a.record(ctx, audit.Entry{
			Action:     domain.AuditUpdate,
			EntityType: EntityGroceryItem,
			UserID:     userID,
			NewValue:   map[string]any{"status": status},
			Metadata:   map[string]any{"ids": changed, "bulk": true},
		})
	}
	return BulkStatusResult{Count: len(changed), IDs: changed}, nil
}

// DeleteRanOut removes every RANOUT item of a list and returns the count.
func (a *App) DeleteRanOut(ctx context.Context, userID, shoppingListID string) (int64, error) {
	shoppingListID = strings.TrimSpace(shoppingListID)
	if shoppingListID == "" {
		return 0, invalid("shoppingListId is required")
	}
	ctx = mutationContext(ctx)
	count, err := a.store.DeleteItemsByStatus(ctx, shoppingListID, domain.StatusRanOut)
	if err != nil {
		return 0, fmt.Errorf("delete ran out items: %w", err)
	}
	if count > 0 {
		a.record(ctx, audit.Entry{
			Action:     domain.AuditDelete,
			EntityType: EntityGroceryItem,
			UserID:     userID,
			Metadata: map[string]any{
				"shoppingListId": shoppingListID,
				"status":         domain.StatusRanOut,
				"count":          count,
			},
		})
	}
	return count, nil
}

// ItemHistory returns one page of an item's history, newest first.
func (a *App) ItemHistory(ctx context.Context, id string, page domain.Page) (Paged[domain.GroceryItemHistory], error) {
	page = normalizePage(page)
	rows, total, err := a.store.ListHistory(ctx, id, page)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Paged[domain.GroceryItemHistory]{}, itemNotFound(id)
		}
		return Paged[domain.GroceryItemHistory]{}, fmt.Errorf("list history: %w", err)
	}
	return newPaged(rows, total, page), nil
}

func (a *App) recordDeletes(ctx context.Context, userID string, items []domain.GroceryItem) {
	for _, item := range items {
		a.record(ctx, audit.Entry{
			Action:     domain.AuditDelete,
			EntityType: EntityGroceryItem,
			EntityID:   item.ID,
			UserID:     userID,
			OldValue:   item,
		})
	}
}

func itemPatch(in ItemChanges) (store.ItemPatch, error) {
	var patch store.ItemPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return store.ItemPatch{}, invalid("name must not be empty")
		}
		patch.Name = &name
	}
	if in.Quantity != nil {
		if *in.Quantity < 0 {
			return store.ItemPatch{}, invalid("quantity must be >= 0")
		}
		patch.Quantity = in.Quantity
	}
	if in.Priority != nil {
		if !validPriority(*in.Priority) {
			return store.ItemPatch{}, invalid("priority must be between %d and %d", domain.MinPriority, domain.MaxPriority)
		}
		patch.Priority = in.Priority
	}
	if in.Status != nil {
		status, ok := domain.ParseItemStatus(*in.Status)
		if !ok {
			return store.ItemPatch{}, invalid("status must be HAVE or RANOUT")
		}
		patch.Status = &status
	}
	if in.NotesSet {
		patch.SetNotes = true
		patch.Notes = normalizeNotes(in.Notes)
	}
	return patch, nil
}

func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return invalid("ids must not be empty")
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid("ids must not contain blank values")
		}
	}
	return nil
}

func validPriority(p int) bool {
	return p >= domain.MinPriority && p <= domain.MaxPriority
}

// normalizeNotes maps blank notes to nil.
func normalizeNotes(notes *string) *string {
	if notes == nil || *notes == "" {
		return nil
	}
	v := *notes
	return &v
}

func normalizePage(p domain.Page) domain.Page {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func itemNotFound(id string) error {
	return fmt.Errorf("%w: grocery item %q not found", ErrNotFound, id)
}
