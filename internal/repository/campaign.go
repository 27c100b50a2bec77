package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/sendry-campaign/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `
	id, name, subject, template, COALESCE(from_email, ''), COALESCE(from_name, ''),
	list_id, COALESCE(profile_id, ''), status, started_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var startedAt, completedAt sql.NullTime
	err := s.Scan(&c.ID, &c.Name, &c.Subject, &c.Template, &c.FromEmail, &c.FromName,
		&c.ListID, &c.ProfileID, &c.Status, &startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return c, nil
}

// Create creates a new campaign in draft status
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.CampaignDraft
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt

	var profileID any
	if c.ProfileID != "" {
		profileID = c.ProfileID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, subject, template, from_email, from_name, list_id, profile_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, c.Template, c.FromEmail, c.FromName, c.ListID, profileID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns campaigns, optionally filtered by status
func (r *CampaignRepository) List(ctx context.Context, status string) ([]models.Campaign, error) {
	query := "SELECT " + campaignColumns + " FROM campaigns WHERE 1=1"
	args := []any{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Update updates the editable fields of a campaign
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	c.UpdatedAt = time.Now().UTC()

	var profileID any
	if c.ProfileID != "" {
		profileID = c.ProfileID
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET name = ?, subject = ?, template = ?, from_email = ?, from_name = ?,
			list_id = ?, profile_id = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Subject, c.Template, c.FromEmail, c.FromName, c.ListID, profileID, c.UpdatedAt, c.ID,
	)
	return err
}

// Delete deletes a campaign and its deliveries
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// MarkInProgress sets the campaign in_progress. The first start time is kept.
func (r *CampaignRepository) MarkInProgress(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ?`,
		models.CampaignInProgress, at.UTC(), at.UTC(), id,
	)
	return err
}

// MarkCompleted sets the campaign completed
func (r *CampaignRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		models.CampaignCompleted, at.UTC(), at.UTC(), id,
	)
	return err
}

// Reopen moves a completed campaign back to in_progress after its deliveries were reset
func (r *CampaignRepository) Reopen(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.CampaignInProgress, time.Now().UTC(), id, models.CampaignCompleted,
	)
	return err
}

// ReopenAll reopens every completed campaign that has deliveries
func (r *CampaignRepository) ReopenAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, completed_at = NULL, updated_at = ?
		WHERE status = ? AND EXISTS (SELECT 1 FROM campaign_deliveries d WHERE d.campaign_id = campaigns.id)`,
		models.CampaignInProgress, time.Now().UTC(), models.CampaignCompleted,
	)
	return err
}
