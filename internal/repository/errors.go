package repository

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrConflict is returned when a write violates a uniqueness or foreign key constraint
var ErrConflict = errors.New("conflicting record")

// wrapConstraint marks SQLite constraint violations with ErrConflict
func wrapConstraint(err error, msg string) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", msg, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
