// Package quota counts successful campaign sends for the daily limit.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Scope selects which deliveries count against the daily limit.
// The two scopes are separate quota domains and are never combined.
type Scope struct {
	campaignID string
}

// Pool counts every campaign delivery sent today
func Pool() Scope {
	return Scope{}
}

// Campaign counts only the deliveries of one campaign
func Campaign(id string) Scope {
	return Scope{campaignID: id}
}

// CampaignID returns the campaign of a per-campaign scope, empty for the pool
func (s Scope) CampaignID() string {
	return s.campaignID
}

func (s Scope) String() string {
	if s.campaignID == "" {
		return "pool"
	}
	return "campaign:" + s.campaignID
}

// Counter is the record store query used by the tracker
type Counter interface {
	CountSentBetween(ctx context.Context, campaignID string, from, to time.Time) (int, error)
}

// Tracker answers how many sends happened today. It keeps no state
// so every call reflects sends made by other writers as well.
type Tracker struct {
	counter Counter
	loc     *time.Location
	now     func() time.Time
}

// NewTracker creates a tracker. "Today" is the calendar day in loc.
func NewTracker(counter Counter, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		counter: counter,
		loc:     loc,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Today returns the bounds of the current day
func (t *Tracker) Today() (start, end time.Time) {
	now := t.now().In(t.loc)
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.loc)
	return start, start.AddDate(0, 0, 1)
}

// CountSentToday counts sent deliveries in scope with sent_at today
func (t *Tracker) CountSentToday(ctx context.Context, scope Scope) (int, error) {
	start, end := t.Today()
	n, err := t.counter.CountSentBetween(ctx, scope.campaignID, start, end)
	if err != nil {
		return 0, fmt.Errorf("quota: failed to count sends for %s: %w", scope, err)
	}
	return n, nil
}

// Remaining returns how many sends are left today under limit along with
// the sends already counted. Remaining is -1 when limit is 0 (unlimited).
func (t *Tracker) Remaining(ctx context.Context, scope Scope, limit int) (remaining, sent int, err error) {
	sent, err = t.CountSentToday(ctx, scope)
	if err != nil {
		return 0, 0, err
	}
	if limit <= 0 {
		return -1, sent, nil
	}
	return max(limit-sent, 0), sent, nil
}

// Exhausted reports whether the daily limit has been reached
func (t *Tracker) Exhausted(ctx context.Context, scope Scope, max int) (bool, int, error) {
	if max <= 0 {
		return false, 0, nil
	}
	n, err := t.CountSentToday(ctx, scope)
	if err != nil {
		return false, 0, err
	}
	return n >= max, n, nil
}
