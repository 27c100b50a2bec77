package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/sendry-campaign/internal/models"
	"github.com/foxzi/sendry-campaign/internal/secret"
)

// ProfileRepository stores SMTP profiles. Passwords are sealed with box.
type ProfileRepository struct {
	db  *sql.DB
	box *secret.Box
}

func NewProfileRepository(db *sql.DB, box *secret.Box) *ProfileRepository {
	if box == nil {
		box = secret.NewBox("")
	}
	return &ProfileRepository{db: db, box: box}
}

// Create creates a new SMTP profile
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	if p.Encryption == "" {
		p.Encryption = models.EncryptionNone
	}

	sealed, err := r.box.Seal(p.Password)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO smtp_profiles (id, name, host, port, username, password, encryption, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Host, p.Port, p.Username, sealed, p.Encryption, p.CreatedAt, p.UpdatedAt,
	)
	return wrapConstraint(err, "failed to create profile")
}

// GetByID returns a profile with its password opened
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.getOne(ctx, "id", id)
}

// GetByName returns a profile by its unique name
func (r *ProfileRepository) GetByName(ctx context.Context, name string) (*models.Profile, error) {
	return r.getOne(ctx, "name", name)
}

func (r *ProfileRepository) getOne(ctx context.Context, column, value string) (*models.Profile, error) {
	p := &models.Profile{}
	var sealed string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, host, port, COALESCE(username, ''), COALESCE(password, ''), encryption, created_at, updated_at
		FROM smtp_profiles WHERE `+column+` = ?`, value,
	).Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &sealed, &p.Encryption, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Password, err = r.box.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return p, nil
}

// List returns all profiles without passwords
func (r *ProfileRepository) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, host, port, COALESCE(username, ''), encryption, created_at, updated_at
		FROM smtp_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &p.Encryption, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Update updates a profile. An empty password keeps the stored one.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now().UTC()

	if p.Password == "" {
		_, err := r.db.ExecContext(ctx, `
			UPDATE smtp_profiles SET name = ?, host = ?, port = ?, username = ?, encryption = ?, updated_at = ?
			WHERE id = ?`,
			p.Name, p.Host, p.Port, p.Username, p.Encryption, p.UpdatedAt, p.ID,
		)
		return wrapConstraint(err, "failed to update profile")
	}

	sealed, err := r.box.Seal(p.Password)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE smtp_profiles SET name = ?, host = ?, port = ?, username = ?, password = ?, encryption = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Host, p.Port, p.Username, sealed, p.Encryption, p.UpdatedAt, p.ID,
	)
	return wrapConstraint(err, "failed to update profile")
}

// Delete deletes a profile
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM smtp_profiles WHERE id = ?", id)
	return err
}
