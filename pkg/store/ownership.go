package store

import (
	"context"
)

// ShoppingListOwner returns the owner id of a list.
func (s *GormStore) ShoppingListOwner(ctx context.Context, listID string) (string, bool, error) {
	var owners []string
	if err := s.db.WithContext(ctx).Model(&ShoppingListModel{}).
		Where("id = ?", listID).
		Limit(1).
		Pluck("created_by_id", &owners).Error; err != nil {
		return "", false, err
	}
	if len(owners) == 0 {
		return "", false, nil
	}
	return owners[0], true, nil
}

// GroceryItemOwner returns the owner id of the item's parent list.
func (s *GormStore) GroceryItemOwner(ctx context.Context, itemID string) (string, bool, error) {
	var owners []string
	if err := s.db.WithContext(ctx).Model(&GroceryItemModel{}).
		Joins("JOIN shopping_lists ON shopping_lists.id = grocery_items.shopping_list_id").
		Where("grocery_items.id = ?", itemID).
		Limit(1).
		Pluck("shopping_lists.created_by_id", &owners).Error; err != nil {
		return "", false, err
	}
	if len(owners) == 0 {
		return "", false, nil
	}
	return owners[0], true, nil
}

// CountOwnedShoppingLists counts how many of ids are lists owned by userID.
func (s *GormStore) CountOwnedShoppingLists(ctx context.Context, userID string, ids []string) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&ShoppingListModel{}).
		Where("id IN ? AND created_by_id = ?", ids, userID).
		Count(&count).Error
	return count, err
}

// CountOwnedGroceryItems counts how many of ids are items whose parent list is
// owned by userID.
func (s *GormStore) CountOwnedGroceryItems(ctx context.Context, userID string, ids []string) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&GroceryItemModel{}).
		Joins("JOIN shopping_lists ON shopping_lists.id = grocery_items.shopping_list_id").
		Where("grocery_items.id IN ? AND shopping_lists.created_by_id = ?", ids, userID).
		Count(&count).Error
	return count, err
}
