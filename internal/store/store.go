// Package store holds the gorm repositories for the billing subsystem.
//
// All mutations are single-row and keyed by primary id or a unique natural
// key, guarded by a status/value precondition in the WHERE clause. A zero
// RowsAffected on such an update means another writer got there first; the
// caller decides whether that is a conflict or an idempotent no-op.
package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("row changed concurrently")
	ErrDuplicate = errors.New("duplicate record")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
