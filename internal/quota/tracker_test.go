package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	sent []sentRecord
	err  error

	lastFrom, lastTo time.Time
}

type sentRecord struct {
	campaignID string
	at         time.Time
}

func (f *fakeCounter) CountSentBetween(ctx context.Context, campaignID string, from, to time.Time) (int, error) {
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, s := range f.sent {
		if campaignID != "" && s.campaignID != campaignID {
			continue
		}
		if !s.at.Before(from) && s.at.Before(to) {
			n++
		}
	}
	return n, nil
}

func TestTracker_CountSentToday(t *testing.T) {
	now := time.Date(2026, 10, 15, 13, 30, 0, 0, time.UTC)
	counter := &fakeCounter{sent: []sentRecord{
		{"c1", now.Add(-time.Hour)},
		{"c1", now.Add(-14 * time.Hour)}, // yesterday
		{"c2", now.Add(-13 * time.Hour)},
		{"c2", now.Add(11 * time.Hour)}, // tomorrow
	}}

	tracker := NewTracker(counter, time.UTC)
	tracker.SetClock(func() time.Time { return now })

	tests := []struct {
		name  string
		scope Scope
		want  int
	}{
		{"pool", Pool(), 2},
		{"campaign c1", Campaign("c1"), 1},
		{"campaign c2", Campaign("c2"), 1},
		{"campaign without sends", Campaign("c3"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tracker.CountSentToday(context.Background(), tt.scope)
			if err != nil {
				t.Fatalf("CountSentToday() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountSentToday(%s) = %d, want %d", tt.scope, got, tt.want)
			}
		})
	}
}

func TestTracker_TodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC is already the next day at UTC+3
	now := time.Date(2026, 10, 15, 22, 30, 0, 0, time.UTC)

	tracker := NewTracker(&fakeCounter{}, loc)
	tracker.SetClock(func() time.Time { return now })

	start, end := tracker.Today()
	wantStart := time.Date(2026, 10, 16, 0, 0, 0, 0, loc)
	if !start.Equal(wantStart) {
		t.Errorf("Today() start = %v, want %v", start, wantStart)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Errorf("Today() span = %v, want 24h", end.Sub(start))
	}
}

func TestTracker_Remaining(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	counter := &fakeCounter{sent: []sentRecord{
		{"c1", now}, {"c1", now}, {"c1", now},
	}}
	tracker := NewTracker(counter, nil)
	tracker.SetClock(func() time.Time { return now })
	ctx := context.Background()

	tests := []struct {
		name string
		max  int
		want int
	}{
		{"unlimited", 0, -1},
		{"room left", 5, 2},
		{"exactly reached", 3, 0},
		{"over", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sent, err := tracker.Remaining(ctx, Pool(), tt.max)
			if err != nil {
				t.Fatalf("Remaining() error = %v", err)
			}
			if got != tt.want || sent != 3 {
				t.Errorf("Remaining(max=%d) = %d, %d, want %d, 3", tt.max, got, sent, tt.want)
			}
		})
	}

	exhausted, count, err := tracker.Exhausted(ctx, Campaign("c1"), 3)
	if err != nil || !exhausted || count != 3 {
		t.Errorf("Exhausted() = %v, %d, %v; want true, 3, nil", exhausted, count, err)
	}
	exhausted, _, _ = tracker.Exhausted(ctx, Campaign("c1"), 0)
	if exhausted {
		t.Error("Exhausted() = true with unlimited quota")
	}
}

func TestTracker_Error(t *testing.T) {
	boom := errors.New("database is locked")
	tracker := NewTracker(&fakeCounter{err: boom}, nil)

	if _, err := tracker.CountSentToday(context.Background(), Pool()); !errors.Is(err, boom) {
		t.Errorf("CountSentToday() error = %v, want wrapped %v", err, boom)
	}
}
