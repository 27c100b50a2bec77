package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/foxzi/sendry-campaign/internal/models"
)

const (
	keyDelayMs        = "pacing.delay_ms"
	keyMaxSendsPerDay = "pacing.max_sends_per_day"
	variablePrefix    = "var."
)

// SettingsRepository stores key/value settings. Pacing keys that were
// never written fall back to defaults.
type SettingsRepository struct {
	db       *sql.DB
	defaults models.PacingSettings
}

func NewSettingsRepository(db *sql.DB, defaults models.PacingSettings) *SettingsRepository {
	return &SettingsRepository{db: db, defaults: defaults}
}

// Get returns a setting value. ok is false when the key is not set.
func (r *SettingsRepository) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes a setting value
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}

// Pacing returns the current pacing settings
func (r *SettingsRepository) Pacing(ctx context.Context) (models.PacingSettings, error) {
	p := r.defaults

	delay, err := r.getInt(ctx, keyDelayMs, p.DelayMs)
	if err != nil {
		return p, err
	}
	maxPerDay, err := r.getInt(ctx, keyMaxSendsPerDay, p.MaxSendsPerDay)
	if err != nil {
		return p, err
	}

	p.DelayMs = delay
	p.MaxSendsPerDay = maxPerDay
	return p, nil
}

// SetPacing saves pacing settings
func (r *SettingsRepository) SetPacing(ctx context.Context, p models.PacingSettings) error {
	if p.DelayMs < 0 || p.MaxSendsPerDay < 0 {
		return fmt.Errorf("pacing values must not be negative")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, value := range map[string]int{keyDelayMs: p.DelayMs, keyMaxSendsPerDay: p.MaxSendsPerDay} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, strconv.Itoa(value), now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SettingsRepository) getInt(ctx context.Context, key string, def int) (int, error) {
	value, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return n, nil
}

// Variables returns global template variables
func (r *SettingsRepository) Variables(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key, value FROM settings WHERE key LIKE ? ORDER BY key", variablePrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		vars[strings.TrimPrefix(key, variablePrefix)] = value
	}
	return vars, rows.Err()
}

// SetVariable sets a global template variable
func (r *SettingsRepository) SetVariable(ctx context.Context, name, value string) error {
	return r.Set(ctx, variablePrefix+name, value)
}

// DeleteVariable deletes a global template variable
func (r *SettingsRepository) DeleteVariable(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", variablePrefix+name)
	return err
}
