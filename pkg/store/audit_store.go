package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
	"groceryapp/pkg/domain"
)

// AppendAuditLog inserts one audit entry. Nil snapshots are stored as NULL.
func (s *GormStore) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	model, err := auditToModel(entry)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListAuditLogs returns the entries recorded against one entity, oldest first.
// The request path only appends; this is the read side for operators and tests.
func (s *GormStore) ListAuditLogs(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	var models []AuditLogModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.AuditLog, 0, len(models))
	for _, m := range models {
		entries = append(entries, auditFromModel(m))
	}
	return entries, nil
}

func auditToModel(entry domain.AuditLog) (AuditLogModel, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	oldValue, err := marshalJSON(entry.OldValue)
	if err != nil {
		return AuditLogModel{}, fmt.Errorf("encode old value: %w", err)
	}
	newValue, err := marshalJSON(entry.NewValue)
	if err != nil {
		return AuditLogModel{}, fmt.Errorf("encode new value: %w", err)
	}
	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return AuditLogModel{}, fmt.Errorf("encode metadata: %w", err)
	}
	return AuditLogModel{
		ID:         entry.ID,
		Action:     string(entry.Action),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		UserID:     entry.UserID,
		OldValue:   oldValue,
		NewValue:   newValue,
		Metadata:   metadata,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		RequestID:  entry.RequestID,
		Timestamp:  entry.Timestamp.UTC(),
	}, nil
}

func auditFromModel(m AuditLogModel) domain.AuditLog {
	return domain.AuditLog{
		ID:         m.ID,
		Action:     domain.AuditAction(m.Action),
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		UserID:     m.UserID,
		OldValue:   unmarshalJSON(m.OldValue),
		NewValue:   unmarshalJSON(m.NewValue),
		Metadata:   unmarshalJSON(m.Metadata),
		IPAddress:  m.IPAddress,
		UserAgent:  m.UserAgent,
		RequestID:  m.RequestID,
		Timestamp:  m.Timestamp,
	}
}

func marshalJSON(value map[string]any) (datatypes.JSON, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}
