package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type Obligations struct {
	db *gorm.DB
}

func NewObligations(db *gorm.DB) *Obligations {
	return &Obligations{db: db}
}

func (s *Obligations) Create(ctx context.Context, o *models.RecurringObligation) error {
	return translate(s.db.WithContext(ctx).Create(o).Error)
}

func (s *Obligations) ByID(ctx context.Context, ownerID, id uint) (*models.RecurringObligation, error) {
	var o models.RecurringObligation
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&o).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Obligations) ListByOwner(ctx context.Context, ownerID uint) ([]models.RecurringObligation, error) {
	var out []models.RecurringObligation
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("next_due_date asc").
		Find(&out).Error
	return out, translate(err)
}

// Due returns active obligations whose next due date has arrived, oldest
// first, capped at limit.
func (s *Obligations) Due(ctx context.Context, now time.Time, limit int) ([]models.RecurringObligation, error) {
	var out []models.RecurringObligation
	q := s.db.WithContext(ctx).
		Where("is_active = ? AND next_due_date <= ?", true, now).
		Order("next_due_date asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, translate(err)
}

// Advance moves next_due_date from a known value to the next one. The old
// value in the WHERE clause is the optimistic guard: if a concurrent cycle
// already advanced the row, RowsAffected is zero and ErrConflict is returned.
func (s *Obligations) Advance(ctx context.Context, id uint, from, to time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.RecurringObligation{}).
		Where("id = ? AND next_due_date = ?", id, from).
		Update("next_due_date", to)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Deactivate clears is_active. Safe to repeat.
func (s *Obligations) Deactivate(ctx context.Context, id uint) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.RecurringObligation{}).
		Where("id = ?", id).
		Update("is_active", false).Error)
}

func (s *Obligations) Save(ctx context.Context, o *models.RecurringObligation) error {
	return translate(s.db.WithContext(ctx).Save(o).Error)
}
