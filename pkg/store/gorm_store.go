package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"groceryapp/pkg/domain"
)

const migrateLockID int64 = 47110815

// sqliteScheme selects the SQLite dialector; anything else is treated as a
// Postgres DSN.
const sqliteScheme = "sqlite:"

type GormStoreOptions struct {
	LogLevel gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithLogLevel overrides the gorm logger level (defaults to Warn).
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database DSN required")
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{Logger: gormLog, NowFunc: func() time.Time { return time.Now().UTC() }}

	if strings.HasPrefix(dsn, sqliteScheme) {
		db, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqliteScheme)), cfg)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// A single connection keeps in-memory databases alive and serializes writers.
		sqlDB.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			return nil, err
		}
		return &GormStore{db: db}, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&ShoppingListModel{},
		&GroceryItemModel{},
		&GroceryItemHistoryModel{},
		&AuditLogModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks connectivity to the database.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUserByEmail creates the user on first sight and refreshes the name on
// later logins. The id never changes once assigned.
func (s *GormStore) UpsertUserByEmail(ctx context.Context, email, name string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, errors.New("email required")
	}
	now := time.Now().UTC()
	model := UserModel{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	var stored UserModel
	if err := db.Where("email = ?", email).First(&stored).Error; err != nil {
		return domain.User{}, err
	}
	return userFromModel(stored), nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func shoppingListFromModel(m ShoppingListModel) domain.ShoppingList {
	return domain.ShoppingList{
		ID:          m.ID,
		Name:        m.Name,
		Notes:       m.Notes,
		CreatedByID: m.CreatedByID,
		CreatedBy: domain.UserRef{
			ID:    m.CreatedBy.ID,
			Name:  m.CreatedBy.Name,
			Email: m.CreatedBy.Email,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func itemToModel(item domain.GroceryItem) GroceryItemModel {
	return GroceryItemModel{
		ID:             item.ID,
		ShoppingListID: item.ShoppingListID,
		Name:           item.Name,
		Quantity:       item.Quantity,
		Priority:       item.Priority,
		Status:         string(item.Status),
		Notes:          item.Notes,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func itemFromModel(m GroceryItemModel) domain.GroceryItem {
	return domain.GroceryItem{
		ID:             m.ID,
		ShoppingListID: m.ShoppingListID,
		Name:           m.Name,
		Quantity:       m.Quantity,
		Priority:       m.Priority,
		Status:         domain.ItemStatus(m.Status),
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func historyFromModel(m GroceryItemHistoryModel) domain.GroceryItemHistory {
	return domain.GroceryItemHistory{
		ID:            m.ID,
		GroceryItemID: m.GroceryItemID,
		Status:        domain.ItemStatus(m.Status),
		ChangedAt:     m.ChangedAt,
	}
}

// likePattern builds a case-insensitive substring pattern for use with
// "LOWER(col) LIKE ? ESCAPE '\'".
func likePattern(search string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.ToLower(search)) + "%"
}

// dedupe drops blanks and repeated ids while keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
