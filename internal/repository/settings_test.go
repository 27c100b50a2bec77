package repository

import (
	"context"
	"testing"

	"github.com/foxzi/sendry-campaign/internal/models"
)

func TestSettingsRepository_Pacing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db, models.PacingSettings{DelayMs: 1000, MaxSendsPerDay: 100})
	ctx := context.Background()

	p, err := repo.Pacing(ctx)
	if err != nil {
		t.Fatalf("Pacing() error = %v", err)
	}
	if p.DelayMs != 1000 || p.MaxSendsPerDay != 100 {
		t.Errorf("Pacing() defaults = %+v", p)
	}

	if err := repo.SetPacing(ctx, models.PacingSettings{DelayMs: 0, MaxSendsPerDay: 0}); err != nil {
		t.Fatalf("SetPacing() error = %v", err)
	}
	p, _ = repo.Pacing(ctx)
	if p.DelayMs != 0 || p.MaxSendsPerDay != 0 {
		t.Errorf("Pacing() after set = %+v, want zeros", p)
	}
	if !p.Unlimited() {
		t.Error("Unlimited() = false for max 0")
	}

	if err := repo.SetPacing(ctx, models.PacingSettings{DelayMs: -1}); err == nil {
		t.Error("SetPacing() accepted negative delay")
	}
}

func TestSettingsRepository_Variables(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db, models.PacingSettings{})
	ctx := context.Background()

	repo.SetVariable(ctx, "company", "ACME")
	repo.SetVariable(ctx, "unsubscribe_url", "https://acme.test/u")
	repo.SetPacing(ctx, models.PacingSettings{DelayMs: 5, MaxSendsPerDay: 5})

	vars, err := repo.Variables(ctx)
	if err != nil {
		t.Fatalf("Variables() error = %v", err)
	}
	if len(vars) != 2 || vars["company"] != "ACME" {
		t.Errorf("Variables() = %v", vars)
	}

	repo.DeleteVariable(ctx, "company")
	vars, _ = repo.Variables(ctx)
	if _, ok := vars["company"]; ok {
		t.Error("variable still present after delete")
	}

	if _, ok, _ := repo.Get(ctx, "missing"); ok {
		t.Error("Get() ok for missing key")
	}
}
