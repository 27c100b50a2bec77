package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/sendry-campaign/internal/models"
)

// DeliveryRepository stores the per-recipient status of campaigns
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Seed creates pending deliveries for the given addresses in one transaction.
// Addresses that already have a delivery are left untouched. Returns the number added.
func (r *DeliveryRepository) Seed(ctx context.Context, campaignID string, emails []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO campaign_deliveries (id, campaign_id, email, status, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, email := range emails {
		res, err := stmt.ExecContext(ctx, uuid.New().String(), campaignID, email, models.DeliveryPending, time.Now().UTC())
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// Count returns the number of deliveries of a campaign
func (r *DeliveryRepository) Count(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM campaign_deliveries WHERE campaign_id = ?", campaignID,
	).Scan(&n)
	return n, err
}

// Pending returns pending deliveries of a campaign in insertion order
func (r *DeliveryRepository) Pending(ctx context.Context, campaignID string) ([]models.Delivery, error) {
	return r.List(ctx, campaignID, models.DeliveryFilter{Status: models.DeliveryPending})
}

// List returns deliveries of a campaign in insertion order
func (r *DeliveryRepository) List(ctx context.Context, campaignID string, filter models.DeliveryFilter) ([]models.Delivery, error) {
	query := `
		SELECT id, campaign_id, email, status, sent_at, COALESCE(error_message, ''), created_at
		FROM campaign_deliveries WHERE campaign_id = ?`
	args := []any{campaignID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at, rowid"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []models.Delivery{}
	for rows.Next() {
		var d models.Delivery
		var sentAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.CampaignID, &d.Email, &d.Status, &sentAt, &d.ErrorMessage, &d.CreatedAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			d.SentAt = &sentAt.Time
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// MarkSent records a successful send. Only pending deliveries change.
func (r *DeliveryRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_deliveries SET status = ?, sent_at = ?, error_message = NULL
		WHERE id = ? AND status = ?`,
		models.DeliverySent, at.UTC(), id, models.DeliveryPending,
	)
	return err
}

// MarkFailed records a failed send with its error. Only pending deliveries change.
func (r *DeliveryRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_deliveries SET status = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		models.DeliveryFailed, errorMsg, id, models.DeliveryPending,
	)
	return err
}

// Stats counts deliveries of a campaign by status
func (r *DeliveryRepository) Stats(ctx context.Context, campaignID string) (*models.DeliveryStats, error) {
	stats := &models.DeliveryStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM campaign_deliveries WHERE campaign_id = ?`,
		models.DeliverySent, models.DeliveryFailed, models.DeliveryPending, campaignID,
	).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ResetCampaign sets every delivery of a campaign back to pending
func (r *DeliveryRepository) ResetCampaign(ctx context.Context, campaignID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_deliveries SET status = ?, sent_at = NULL, error_message = NULL
		WHERE campaign_id = ?`,
		models.DeliveryPending, campaignID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetAll sets every delivery of every campaign back to pending
func (r *DeliveryRepository) ResetAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_deliveries SET status = ?, sent_at = NULL, error_message = NULL`,
		models.DeliveryPending,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountSentBetween counts sent deliveries with sent_at in [from, to).
// An empty campaignID counts across all campaigns.
func (r *DeliveryRepository) CountSentBetween(ctx context.Context, campaignID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM campaign_deliveries
		WHERE status = ? AND sent_at >= ? AND sent_at < ?`
	args := []any{models.DeliverySent, from.UTC(), to.UTC()}

	if campaignID != "" {
		query += " AND campaign_id = ?"
		args = append(args, campaignID)
	}

	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
