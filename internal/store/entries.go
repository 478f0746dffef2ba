package store

import (
	"context"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type Entries struct {
	db *gorm.DB
}

func NewEntries(db *gorm.DB) *Entries {
	return &Entries{db: db}
}

// CreateCycleEntry inserts the ledger record for one due cycle. The unique
// (obligation id, due date) index makes a replayed cycle fail with
// ErrDuplicate instead of double-recording the charge.
func (s *Entries) CreateCycleEntry(ctx context.Context, e *models.Entry) error {
	return translate(s.db.WithContext(ctx).Create(e).Error)
}

func (s *Entries) ListByOwner(ctx context.Context, ownerID uint) ([]models.Entry, error) {
	var out []models.Entry
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date desc, created_at desc").
		Find(&out).Error
	return out, translate(err)
}

func (s *Entries) ByObligation(ctx context.Context, obligationID uint) ([]models.Entry, error) {
	var out []models.Entry
	err := s.db.WithContext(ctx).
		Where("recurring_obligation_id = ?", obligationID).
		Order("due_date asc").
		Find(&out).Error
	return out, translate(err)
}
