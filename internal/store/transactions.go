package store

import (
	"context"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type Transactions struct {
	db *gorm.DB
}

func NewTransactions(db *gorm.DB) *Transactions {
	return &Transactions{db: db}
}

// Create inserts a pending transaction. gateway_reference is unique, so a
// replayed charge initialization surfaces as ErrDuplicate.
func (s *Transactions) Create(ctx context.Context, t *models.Transaction) error {
	return translate(s.db.WithContext(ctx).Create(t).Error)
}

func (s *Transactions) ByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Transactions) ByGatewayTransactionID(ctx context.Context, gtxID string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).
		Where("gateway_transaction_id = ?", gtxID).
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Transactions) ByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).
		Where("gateway_reference = ?", ref).
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// UpdateStatusIf applies a conditional status transition. The current status
// in the WHERE clause prevents a lost update when the webhook and a direct
// verification race on the same row: the loser sees ErrConflict.
func (s *Transactions) UpdateStatusIf(ctx context.Context, id uint, from, to models.TransactionStatus, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
