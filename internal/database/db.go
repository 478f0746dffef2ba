package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"finance-billing-go/internal/config"
	"finance-billing-go/internal/models"
)

// Connect opens the postgres connection described by cfg. The handle is
// returned rather than stored in a package global so tests and callers can
// hold independent instances.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode,
	)

	// TranslateError turns driver unique-violation errors into
	// gorm.ErrDuplicatedKey, which the stores rely on for dedup.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema for every billing model, including the unique
// indexes the idempotency guarantees depend on.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RecurringObligation{},
		&models.Entry{},
		&models.Plan{},
		&models.Subscription{},
		&models.Transaction{},
		&models.WebhookEvent{},
	)
}
