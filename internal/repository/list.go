package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/sendry-campaign/internal/models"
)

type ListRepository struct {
	db *sql.DB
}

func NewListRepository(db *sql.DB) *ListRepository {
	return &ListRepository{db: db}
}

// Create creates a new recipient list
func (r *ListRepository) Create(ctx context.Context, list *models.RecipientList) error {
	list.ID = uuid.New().String()
	list.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipient_lists (id, name, created_at) VALUES (?, ?, ?)`,
		list.ID, list.Name, list.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recipient list: %w", err)
	}
	return nil
}

// GetByID returns a recipient list with its item count
func (r *ListRepository) GetByID(ctx context.Context, id string) (*models.RecipientList, error) {
	list := &models.RecipientList{}
	err := r.db.QueryRowContext(ctx, `
		SELECT l.id, l.name, l.created_at,
			(SELECT COUNT(*) FROM list_items i WHERE i.list_id = l.id)
		FROM recipient_lists l WHERE l.id = ?`, id,
	).Scan(&list.ID, &list.Name, &list.CreatedAt, &list.TotalCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

// List returns all recipient lists
func (r *ListRepository) List(ctx context.Context) ([]models.RecipientList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.created_at,
			(SELECT COUNT(*) FROM list_items i WHERE i.list_id = l.id)
		FROM recipient_lists l ORDER BY l.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []models.RecipientList{}
	for rows.Next() {
		var l models.RecipientList
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt, &l.TotalCount); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// Rename changes the name of a list. It reports whether the list exists.
func (r *ListRepository) Rename(ctx context.Context, id, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE recipient_lists SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return false, fmt.Errorf("failed to rename recipient list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete deletes a list and its items
func (r *ListRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM recipient_lists WHERE id = ?", id)
	return wrapConstraint(err, "failed to delete recipient list")
}

// AddItems adds addresses to a list. Addresses already on the list are skipped.
func (r *ListRepository) AddItems(ctx context.Context, listID string, emails []string) (*models.ImportResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO list_items (id, list_id, email, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	result := &models.ImportResult{}
	for _, email := range emails {
		res, err := stmt.ExecContext(ctx, uuid.New().String(), listID, email, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", email, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Added++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// Items returns all addresses of a list in insertion order
func (r *ListRepository) Items(ctx context.Context, listID string) ([]models.ListItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, list_id, email, created_at
		FROM list_items WHERE list_id = ?
		ORDER BY created_at, rowid`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ListItem{}
	for rows.Next() {
		var item models.ListItem
		if err := rows.Scan(&item.ID, &item.ListID, &item.Email, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RemoveItem removes one address from a list
func (r *ListRepository) RemoveItem(ctx context.Context, listID, email string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM list_items WHERE list_id = ? AND email = ?", listID, email)
	return err
}

// UpdateItem replaces the address of one list item. It returns nil when the
// item is not on the list and ErrConflict when the address already is.
// Deliveries seeded from the old address are not touched.
func (r *ListRepository) UpdateItem(ctx context.Context, listID, itemID, email string) (*models.ListItem, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE list_items SET email = ? WHERE id = ? AND list_id = ?", email, itemID, listID)
	if err != nil {
		return nil, wrapConstraint(err, "failed to update list item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	item := &models.ListItem{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, list_id, email, created_at FROM list_items WHERE id = ?`, itemID,
	).Scan(&item.ID, &item.ListID, &item.Email, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load list item: %w", err)
	}
	return item, nil
}
