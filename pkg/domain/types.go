package domain

import (
	"strings"
	"time"
)

type ItemStatus string

const (
	StatusHave   ItemStatus = "HAVE"
	StatusRanOut ItemStatus = "RANOUT"
)

// ParseItemStatus accepts the canonical upper-case values, case-insensitively.
func ParseItemStatus(raw string) (ItemStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(StatusHave):
		return StatusHave, true
	case string(StatusRanOut):
		return StatusRanOut, true
	default:
		return "", false
	}
}

// ResourceType names an ownable resource.
type ResourceType string

const (
	ResourceShoppingList ResourceType = "shoppingList"
	ResourceGroceryItem  ResourceType = "groceryItem"
)

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
	DefaultQuantity = 1
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserRef is the embedded owner summary returned with shopping lists.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ShoppingList struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Notes       *string   `json:"notes"`
	CreatedByID string    `json:"createdById"`
	CreatedBy   UserRef   `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GroceryItem struct {
	ID             string               `json:"id"`
	ShoppingListID string               `json:"shoppingListId"`
	Name           string               `json:"name"`
	Quantity       int                  `json:"quantity"`
	Priority       int                  `json:"priority"`
	Status         ItemStatus           `json:"status"`
	Notes          *string              `json:"notes"`
	History        []GroceryItemHistory `json:"history,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

type GroceryItemHistory struct {
	ID            string     `json:"id"`
	GroceryItemID string     `json:"groceryItemId"`
	Status        ItemStatus `json:"status"`
	ChangedAt     time.Time  `json:"changedAt"`
}

type AuditAction string

const (
	AuditCreate       AuditAction = "CREATE"
	AuditRead         AuditAction = "READ"
	AuditUpdate       AuditAction = "UPDATE"
	AuditDelete       AuditAction = "DELETE"
	AuditLogin        AuditAction = "LOGIN"
	AuditLogout       AuditAction = "LOGOUT"
	AuditAccessDenied AuditAction = "ACCESS_DENIED"
)

// AuditLog is an append-only record of a sensitive action. Pointer fields are
// stored as NULL when the value was not available.
type AuditLog struct {
	ID         string         `json:"id"`
	Action     AuditAction    `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   *string        `json:"entityId"`
	UserID     string         `json:"userId"`
	OldValue   map[string]any `json:"oldValue"`
	NewValue   map[string]any `json:"newValue"`
	Metadata   map[string]any `json:"metadata"`
	IPAddress  *string        `json:"ipAddress"`
	UserAgent  *string        `json:"userAgent"`
	RequestID  *string        `json:"requestId"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Page describes a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// PageMeta is the pagination envelope returned with result sets.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPageMeta computes page math for a result set of total rows.
func NewPageMeta(total int64, p Page) PageMeta {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PageMeta{Total: total, Page: p.Page, Limit: p.Limit, TotalPages: totalPages}
}
