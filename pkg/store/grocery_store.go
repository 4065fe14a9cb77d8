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

// CreateItem inserts the item and its initial history row in one transaction.
func (s *GormStore) CreateItem(ctx context.Context, item domain.GroceryItem) (domain.GroceryItem, error) {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	model := itemToModel(item)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return err
		}
		return appendHistory(tx, []string{model.ID}, item.Status, now)
	})
	if err != nil {
		return domain.GroceryItem{}, err
	}
	return itemFromModel(model), nil
}

// GetItem retrieves an item, optionally with its full history newest-first.
func (s *GormStore) GetItem(ctx context.Context, id string, withHistory bool) (domain.GroceryItem, bool, error) {
	db := s.db.WithContext(ctx)
	var model GroceryItemModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GroceryItem{}, false, nil
		}
		return domain.GroceryItem{}, false, err
	}
	item := itemFromModel(model)
	if withHistory {
		var rows []GroceryItemHistoryModel
		if err := db.Where("grocery_item_id = ?", id).Order("changed_at DESC").Find(&rows).Error; err != nil {
			return domain.GroceryItem{}, false, err
		}
		item.History = make([]domain.GroceryItemHistory, 0, len(rows))
		for _, row := range rows {
			item.History = append(item.History, historyFromModel(row))
		}
	}
	return item, true, nil
}

// ListItems returns one page of a list's items ordered by priority then name,
// with the total match count.
func (s *GormStore) ListItems(ctx context.Context, filter ItemFilter) ([]domain.GroceryItem, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("shopping_list_id = ?", filter.ShoppingListID)
		if filter.Status != nil {
			db = db.Where("status = ?", string(*filter.Status))
		}
		if filter.Priority != nil {
			db = db.Where("priority = ?", *filter.Priority)
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			db = db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(search))
		}
		return db
	}
	var (
		total  int64
		models []GroceryItemModel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&GroceryItemModel{}).Scopes(scope).Count(&total).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Scopes(scope).
			Order("priority ASC").
			Order("name ASC").
			Offset(filter.Page.Offset()).
			Limit(filter.Page.Limit).
			Find(&models).Error
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	items := make([]domain.GroceryItem, 0, len(models))
	for _, m := range models {
		items = append(items, itemFromModel(m))
	}
	return items, total, nil
}

// UpdateItem loads the current row and applies the patch inside one
// transaction. A history row is appended only when the status actually
// changes; writing the current status again is a plain update.
func (s *GormStore) UpdateItem(ctx context.Context, id string, patch ItemPatch) (ItemUpdate, error) {
	var result ItemUpdate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current GroceryItemModel
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		result.Before = itemFromModel(current)

		now := time.Now().UTC()
		updates := map[string]any{"updated_at": now}
		next := current
		next.UpdatedAt = now
		if patch.Name != nil {
			updates["name"] = *patch.Name
			next.Name = *patch.Name
		}
		if patch.Quantity != nil {
			updates["quantity"] = *patch.Quantity
			next.Quantity = *patch.Quantity
		}
		if patch.Priority != nil {
			updates["priority"] = *patch.Priority
			next.Priority = *patch.Priority
		}
		if patch.SetNotes {
			updates["notes"] = patch.Notes
			next.Notes = patch.Notes
		}
		if patch.Status != nil && string(*patch.Status) != current.Status {
			updates["status"] = string(*patch.Status)
			next.Status = string(*patch.Status)
			result.StatusChanged = true
		}

		if err := tx.Model(&GroceryItemModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if result.StatusChanged {
			if err := appendHistory(tx, []string{id}, domain.ItemStatus(next.Status), now); err != nil {
				return err
			}
		}
		result.After = itemFromModel(next)
		return nil
	})
	if err != nil {
		return ItemUpdate{}, err
	}
	return result, nil
}

// DeleteItems removes the given items after verifying every id exists. History
// rows go first, then the items, in one transaction; a missing id aborts the
// whole batch with ErrNotFound.
func (s *GormStore) DeleteItems(ctx context.Context, ids []string) ([]domain.GroceryItem, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	var deleted []domain.GroceryItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []GroceryItemModel
		if err := tx.Where("id IN ?", ids).Find(&models).Error; err != nil {
			return err
		}
		if len(models) != len(ids) {
			return ErrNotFound
		}
		if _, err := deleteItemRows(tx, ids); err != nil {
			return err
		}
		deleted = make([]domain.GroceryItem, 0, len(models))
		for _, m := range models {
			deleted = append(deleted, itemFromModel(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// BulkUpdateStatus sets status on every id whose current status differs and
// appends one history row per changed item. All ids must exist. It returns the
// ids that actually changed; none changing is not an error.
func (s *GormStore) BulkUpdateStatus(ctx context.Context, ids []string, status domain.ItemStatus) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	var changed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&GroceryItemModel{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(ids)) {
			return ErrNotFound
		}
		if err := tx.Model(&GroceryItemModel{}).
			Where("id IN ? AND status <> ?", ids, string(status)).
			Pluck("id", &changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&GroceryItemModel{}).
			Where("id IN ?", changed).
			Updates(map[string]any{"status": string(status), "updated_at": now}).Error; err != nil {
			return err
		}
		return appendHistory(tx, changed, status, now)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// DeleteItemsByStatus removes every item of the list having status, with
// their history, and returns how many items were removed.
func (s *GormStore) DeleteItemsByStatus(ctx context.Context, shoppingListID string, status domain.ItemStatus) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&GroceryItemModel{}).
			Where("shopping_list_id = ? AND status = ?", shoppingListID, string(status)).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		n, err := deleteItemRows(tx, ids)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ListHistory returns one page of an item's history newest-first and the total
// row count. ErrNotFound is returned when the item does not exist.
func (s *GormStore) ListHistory(ctx context.Context, itemID string, page domain.Page) ([]domain.GroceryItemHistory, int64, error) {
	db := s.db.WithContext(ctx)
	var exists int64
	if err := db.Model(&GroceryItemModel{}).Where("id = ?", itemID).Count(&exists).Error; err != nil {
		return nil, 0, err
	}
	if exists == 0 {
		return nil, 0, ErrNotFound
	}
	var (
		total int64
		rows  []GroceryItemHistoryModel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&GroceryItemHistoryModel{}).
			Where("grocery_item_id = ?", itemID).
			Count(&total).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).
			Where("grocery_item_id = ?", itemID).
			Order("changed_at DESC").
			Offset(page.Offset()).
			Limit(page.Limit).
			Find(&rows).Error
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	history := make([]domain.GroceryItemHistory, 0, len(rows))
	for _, row := range rows {
		history = append(history, historyFromModel(row))
	}
	return history, total, nil
}

func appendHistory(tx *gorm.DB, itemIDs []string, status domain.ItemStatus, at time.Time) error {
	rows := make([]GroceryItemHistoryModel, 0, len(itemIDs))
	for _, id := range itemIDs {
		rows = append(rows, GroceryItemHistoryModel{
			ID:            uuid.NewString(),
			GroceryItemID: id,
			Status:        string(status),
			ChangedAt:     at,
		})
	}
	return tx.Omit(clause.Associations).CreateInBatches(&rows, 200).Error
}

// deleteItemRows removes history before items to keep referential order.
func deleteItemRows(tx *gorm.DB, ids []string) (int64, error) {
	if err := tx.Where("grocery_item_id IN ?", ids).Delete(&GroceryItemHistoryModel{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id IN ?", ids).Delete(&GroceryItemModel{})
	return res.RowsAffected, res.Error
}
