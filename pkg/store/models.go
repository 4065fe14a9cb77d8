package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ShoppingListModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"size:100;not null"`
	Notes       *string   `gorm:"size:500"`
	CreatedByID string    `gorm:"size:36;not null;index"`
	CreatedBy   UserModel `gorm:"foreignKey:CreatedByID;references:ID"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ShoppingListModel) TableName() string { return "shopping_lists" }

type GroceryItemModel struct {
	ID             string             `gorm:"primaryKey;size:36"`
	ShoppingListID string             `gorm:"size:36;not null;index"`
	ShoppingList   *ShoppingListModel `gorm:"foreignKey:ShoppingListID;references:ID"`
	Name           string             `gorm:"not null"`
	Quantity       int                `gorm:"not null"`
	Priority       int                `gorm:"not null"`
	Status         string             `gorm:"size:16;not null;index;check:chk_grocery_items_status,status IN ('HAVE','RANOUT')"`
	Notes          *string
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (GroceryItemModel) TableName() string { return "grocery_items" }

type GroceryItemHistoryModel struct {
	ID            string            `gorm:"primaryKey;size:36"`
	GroceryItemID string            `gorm:"size:36;not null;index"`
	GroceryItem   *GroceryItemModel `gorm:"foreignKey:GroceryItemID;references:ID"`
	Status        string            `gorm:"size:16;not null"`
	ChangedAt     time.Time         `gorm:"not null;index"`
}

func (GroceryItemHistoryModel) TableName() string { return "grocery_item_histories" }

type AuditLogModel struct {
	ID         string  `gorm:"primaryKey;size:36"`
	Action     string  `gorm:"size:32;not null;index"`
	EntityType string  `gorm:"size:64"`
	EntityID   *string `gorm:"size:36;index"`
	UserID     string  `gorm:"size:36;not null;index"`
	OldValue   datatypes.JSON
	NewValue   datatypes.JSON
	Metadata   datatypes.JSON
	IPAddress  *string
	UserAgent  *string
	RequestID  *string   `gorm:"size:100"`
	Timestamp  time.Time `gorm:"not null;index"`
}

func (AuditLogModel) TableName() string { return "audit_logs" }
