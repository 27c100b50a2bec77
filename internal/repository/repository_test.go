package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/foxzi/sendry-campaign/internal/db"
	"github.com/foxzi/sendry-campaign/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.NewMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database.DB
}

func createTestList(t *testing.T, sqlDB *sql.DB, emails ...string) *models.RecipientList {
	t.Helper()

	repo := NewListRepository(sqlDB)
	list := &models.RecipientList{Name: "test list"}
	if err := repo.Create(context.Background(), list); err != nil {
		t.Fatalf("failed to create list: %v", err)
	}
	if len(emails) > 0 {
		if _, err := repo.AddItems(context.Background(), list.ID, emails); err != nil {
			t.Fatalf("failed to add items: %v", err)
		}
	}
	return list
}

func createTestProfile(t *testing.T, sqlDB *sql.DB) *models.Profile {
	t.Helper()

	p := &models.Profile{Name: "relay", Host: "smtp.example.com", Port: 587, Username: "user", Password: "pass"}
	if err := NewProfileRepository(sqlDB, nil).Create(context.Background(), p); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return p
}

func createTestCampaign(t *testing.T, sqlDB *sql.DB, listID, profileID string) *models.Campaign {
	t.Helper()

	c := &models.Campaign{
		Name:      "October news",
		Subject:   "Hello",
		Template:  "<p>Hi {{email}}</p>",
		ListID:    listID,
		ProfileID: profileID,
	}
	if err := NewCampaignRepository(sqlDB).Create(context.Background(), c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}
