package store

import (
	"context"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type Plans struct {
	db *gorm.DB
}

func NewPlans(db *gorm.DB) *Plans {
	return &Plans{db: db}
}

func (s *Plans) Create(ctx context.Context, p *models.Plan) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *Plans) ByID(ctx context.Context, id uint) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Plans) ByCode(ctx context.Context, code string) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Plans) List(ctx context.Context) ([]models.Plan, error) {
	var out []models.Plan
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("amount asc").Find(&out).Error
	return out, translate(err)
}
