package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type WebhookEvents struct {
	db *gorm.DB
}

func NewWebhookEvents(db *gorm.DB) *WebhookEvents {
	return &WebhookEvents{db: db}
}

// Record inserts the delivery audit row. A redelivered event id collides on
// the unique provider/event index and comes back as ErrDuplicate.
func (s *WebhookEvents) Record(ctx context.Context, ev *models.WebhookEvent) error {
	return translate(s.db.WithContext(ctx).Create(ev).Error)
}

// MarkProcessed stamps the outcome of processing. procErr empty means clean.
func (s *WebhookEvents) MarkProcessed(ctx context.Context, id uint, procErr string) error {
	now := time.Now()
	return translate(s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": &now, "processing_error": procErr}).Error)
}
