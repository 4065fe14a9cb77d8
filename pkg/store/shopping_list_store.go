package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"groceryapp/pkg/domain"
)

var shoppingListSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
}

// CreateShoppingList stores a new list and returns it with its owner embedded.
func (s *GormStore) CreateShoppingList(ctx context.Context, list domain.ShoppingList) (domain.ShoppingList, error) {
	now := time.Now().UTC()
	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	model := ShoppingListModel{
		ID:          list.ID,
		Name:        list.Name,
		Notes:       list.Notes,
		CreatedByID: list.CreatedByID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return domain.ShoppingList{}, err
	}
	created, ok, err := s.GetShoppingList(ctx, model.ID)
	if err != nil {
		return domain.ShoppingList{}, err
	}
	if !ok {
		return domain.ShoppingList{}, ErrNotFound
	}
	return created, nil
}

// GetShoppingList retrieves a list by id with its owner embedded.
func (s *GormStore) GetShoppingList(ctx context.Context, id string) (domain.ShoppingList, bool, error) {
	var model ShoppingListModel
	if err := s.db.WithContext(ctx).Preload("CreatedBy").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ShoppingList{}, false, nil
		}
		return domain.ShoppingList{}, false, err
	}
	return shoppingListFromModel(model), true, nil
}

// ListShoppingLists returns one page of an owner's lists and the total count.
func (s *GormStore) ListShoppingLists(ctx context.Context, filter ShoppingListFilter) ([]domain.ShoppingList, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("created_by_id = ?", filter.OwnerID)
		if search := strings.TrimSpace(filter.Search); search != "" {
			db = db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(search))
		}
		return db
	}
	column, ok := shoppingListSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	desc := !strings.EqualFold(filter.SortOrder, "asc")

	var (
		total  int64
		models []ShoppingListModel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&ShoppingListModel{}).Scopes(scope).Count(&total).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Scopes(scope).
			Preload("CreatedBy").
			Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
			Offset(filter.Page.Offset()).
			Limit(filter.Page.Limit).
			Find(&models).Error
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	lists := make([]domain.ShoppingList, 0, len(models))
	for _, m := range models {
		lists = append(lists, shoppingListFromModel(m))
	}
	return lists, total, nil
}

// UpdateShoppingList applies a partial update.
func (s *GormStore) UpdateShoppingList(ctx context.Context, id string, patch ShoppingListPatch) (domain.ShoppingList, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.SetNotes {
		updates["notes"] = patch.Notes
	}
	res := s.db.WithContext(ctx).Model(&ShoppingListModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.ShoppingList{}, res.Error
	}
	updated, ok, err := s.GetShoppingList(ctx, id)
	if err != nil {
		return domain.ShoppingList{}, err
	}
	if !ok {
		return domain.ShoppingList{}, ErrNotFound
	}
	return updated, nil
}

// DeleteShoppingList removes the list along with its items and their history,
// history first, in one transaction. It returns the deleted list.
func (s *GormStore) DeleteShoppingList(ctx context.Context, id string) (domain.ShoppingList, error) {
	var deleted domain.ShoppingList
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ShoppingListModel
		if err := tx.Preload("CreatedBy").First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		deleted = shoppingListFromModel(model)
		itemIDs := tx.Model(&GroceryItemModel{}).Select("id").Where("shopping_list_id = ?", id)
		if err := tx.Where("grocery_item_id IN (?)", itemIDs).Delete(&GroceryItemHistoryModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("shopping_list_id = ?", id).Delete(&GroceryItemModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ShoppingListModel{}, "id = ?", id).Error
	})
	if err != nil {
		return domain.ShoppingList{}, err
	}
	return deleted, nil
}
