package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/foxzi/sendry-campaign/internal/models"
	"github.com/foxzi/sendry-campaign/internal/secret"
)

func TestProfileRepository_PasswordSealed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db, secret.NewBox("a long enough passphrase"))
	ctx := context.Background()

	p := &models.Profile{Name: "relay", Host: "smtp.example.com", Port: 465, Username: "u", Password: "s3cret", Encryption: models.EncryptionSSL}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var stored string
	if err := db.QueryRow("SELECT password FROM smtp_profiles WHERE id = ?", p.ID).Scan(&stored); err != nil {
		t.Fatalf("failed to read stored password: %v", err)
	}
	if stored == "s3cret" {
		t.Error("password stored in plain text")
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Password != "s3cret" {
		t.Errorf("Password = %q, want s3cret", got.Password)
	}
	if got.Port != 465 || got.Encryption != models.EncryptionSSL {
		t.Errorf("GetByID() = %+v", got)
	}

	byName, err := repo.GetByName(ctx, "relay")
	if err != nil || byName == nil || byName.ID != p.ID {
		t.Errorf("GetByName() = %+v, %v", byName, err)
	}
}

func TestProfileRepository_DefaultsAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db, nil)
	ctx := context.Background()

	p := &models.Profile{Name: "plain", Host: "localhost", Port: 25, Password: "first"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Encryption != models.EncryptionNone {
		t.Errorf("Encryption = %q, want none", p.Encryption)
	}

	p.Host = "mail.local"
	p.Password = ""
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, p.ID)
	if got.Host != "mail.local" {
		t.Errorf("Host = %q, want mail.local", got.Host)
	}
	if got.Password != "first" {
		t.Errorf("Password = %q, empty update should keep it", got.Password)
	}

	profiles, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(profiles) != 1 || profiles[0].Password != "" {
		t.Errorf("List() = %+v, want one profile without password", profiles)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, _ := repo.GetByID(ctx, p.ID); got != nil {
		t.Error("profile still present after Delete()")
	}
}

func TestProfileRepository_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(db, nil)

	createTestProfile(t, db)
	err := repo.Create(ctx, &models.Profile{Name: "relay", Host: "other.example.com", Port: 25})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}
