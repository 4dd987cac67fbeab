package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditStore is append-only; there is deliberately no update or delete.
type AuditStore struct{ db *gorm.DB }

func (s *Store) AuditLogs() *AuditStore { return &AuditStore{db: s.DB} }

func (a *AuditStore) Append(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return a.db.WithContext(ctx).Create(entry).Error
}
