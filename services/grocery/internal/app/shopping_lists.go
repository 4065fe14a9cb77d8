package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
	"groceryapp/services/grocery/internal/audit"
)

// ShoppingListQuery selects the caller's lists.
type ShoppingListQuery struct {
	Search    string
	SortBy    string
	SortOrder string
	Page      domain.Page
}

type ShoppingListInput struct {
	Name  string
	Notes *string
}

// ShoppingListChanges is a partial update. Notes is only applied when
// NotesSet is true.
type ShoppingListChanges struct {
	Name     *string
	Notes    *string
	NotesSet bool
}

// CreateShoppingList creates a list owned by userID.
func (a *App) CreateShoppingList(ctx context.Context, userID string, in ShoppingListInput) (domain.ShoppingList, error) {
	name, err := validListName(in.Name)
	if err != nil {
		return domain.ShoppingList{}, err
	}
	notes := normalizeNotes(in.Notes)
	if err := validListNotes(notes); err != nil {
		return domain.ShoppingList{}, err
	}

	ctx = mutationContext(ctx)
	created, err := a.store.CreateShoppingList(ctx, domain.ShoppingList{
		Name:        name,
		Notes:       notes,
		CreatedByID: userID,
	})
	if err != nil {
		return domain.ShoppingList{}, fmt.Errorf("create shopping list: %w", err)
	}
	a.record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: EntityShoppingList,
		EntityID:   created.ID,
		UserID:     userID,
		NewValue:   created,
	})
	return created, nil
}

// ListShoppingLists returns one page of the lists owned by userID.
func (a *App) ListShoppingLists(ctx context.Context, userID string, q ShoppingListQuery) (Paged[domain.ShoppingList], error) {
	filter := store.ShoppingListFilter{
		OwnerID:   userID,
		Search:    strings.TrimSpace(q.Search),
		SortBy:    "createdAt",
		SortOrder: "desc",
		Page:      normalizePage(q.Page),
	}
	switch sortBy := strings.TrimSpace(q.SortBy); sortBy {
	case "":
	case "createdAt", "updatedAt", "name":
		filter.SortBy = sortBy
	default:
		return Paged[domain.ShoppingList]{}, invalid("sortBy must be one of createdAt, updatedAt, name")
	}
	switch order := strings.ToLower(strings.TrimSpace(q.SortOrder)); order {
	case "":
	case "asc", "desc":
		filter.SortOrder = order
	default:
		return Paged[domain.ShoppingList]{}, invalid("sortOrder must be asc or desc")
	}

	lists, total, err := a.store.ListShoppingLists(ctx, filter)
	if err != nil {
		return Paged[domain.ShoppingList]{}, fmt.Errorf("list shopping lists: %w", err)
	}
	return newPaged(lists, total, filter.Page), nil
}

func (a *App) GetShoppingList(ctx context.Context, id string) (domain.ShoppingList, error) {
	list, ok, err := a.store.GetShoppingList(ctx, id)
	if err != nil {
		return domain.ShoppingList{}, fmt.Errorf("get shopping list: %w", err)
	}
	if !ok {
		return domain.ShoppingList{}, listNotFound(id)
	}
	return list, nil
}

// UpdateShoppingList applies a partial update.
func (a *App) UpdateShoppingList(ctx context.Context, userID, id string, in ShoppingListChanges) (domain.ShoppingList, error) {
	var patch store.ShoppingListPatch
	if in.Name != nil {
		name, err := validListName(*in.Name)
		if err != nil {
			return domain.ShoppingList{}, err
		}
		patch.Name = &name
	}
	if in.NotesSet {
		patch.SetNotes = true
		patch.Notes = normalizeNotes(in.Notes)
		if err := validListNotes(patch.Notes); err != nil {
			return domain.ShoppingList{}, err
		}
	}

	ctx = mutationContext(ctx)
	before, err := a.GetShoppingList(ctx, id)
	if err != nil {
		return domain.ShoppingList{}, err
	}
	updated, err := a.store.UpdateShoppingList(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShoppingList{}, listNotFound(id)
		}
		return domain.ShoppingList{}, fmt.Errorf("update shopping list: %w", err)
	}
	a.record(ctx, audit.Entry{
		Action:     domain.AuditUpdate,
		EntityType: EntityShoppingList,
		EntityID:   id,
		UserID:     userID,
		OldValue:   before,
		NewValue:   updated,
	})
	return updated, nil
}

// DeleteShoppingList removes the list with all its items and their history.
func (a *App) DeleteShoppingList(ctx context.Context, userID, id string) (domain.ShoppingList, error) {
	ctx = mutationContext(ctx)
	deleted, err := a.store.DeleteShoppingList(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShoppingList{}, listNotFound(id)
		}
		return domain.ShoppingList{}, fmt.Errorf("delete shopping list: %w", err)
	}
	a.record(ctx, audit.Entry{
		Action:     domain.AuditDelete,
		EntityType: EntityShoppingList,
		EntityID:   id,
		UserID:     userID,
		OldValue:   deleted,
	})
	return deleted, nil
}

func validListName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid("name is required")
	}
	if utf8.RuneCountInString(name) > MaxListNameLength {
		return "", invalid("name must be at most %d characters", MaxListNameLength)
	}
	return name, nil
}

func validListNotes(notes *string) error {
	if notes != nil && utf8.RuneCountInString(*notes) > MaxListNotesLength {
		return invalid("notes must be at most %d characters", MaxListNotesLength)
	}
	return nil
}

func listNotFound(id string) error {
	return fmt.Errorf("%w: shopping list %q not found", ErrNotFound, id)
}
