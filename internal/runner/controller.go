// Package runner owns the single dispatch slot of the process. It starts
// passes in the background, reports their progress and stops them
// cooperatively.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/sendry-campaign/internal/dispatch"
	"github.com/foxzi/sendry-campaign/internal/history"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/repository"
)

// ErrRunActive is returned when a reset or reseed would race a live run
var ErrRunActive = errors.New("a dispatch run is active")

// Journal stores finished runs
type Journal interface {
	Append(ctx context.Context, rec *history.Record) error
}

// Status describes the current or most recent run
type Status struct {
	Active     bool              `json:"active"`
	Stopping   bool              `json:"stopping,omitempty"`
	CampaignID string            `json:"campaign_id,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	Progress   dispatch.Progress `json:"progress"`
	LastResult *dispatch.Result  `json:"last_result,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
}

// Controller runs at most one dispatch pass at a time
type Controller struct {
	engine     *dispatch.Engine
	campaigns  *repository.CampaignRepository
	deliveries *repository.DeliveryRepository
	journal    Journal
	logger     *slog.Logger

	// ctx outlives the requests that start runs and is canceled on shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	reserved   bool // slot taken, pre-flight in progress or pass running
	running    bool
	campaignID string
	startedAt  time.Time
	progress   dispatch.Progress
	stop       chan struct{}
	stopping   bool
	done       chan struct{}
	last       *dispatch.Result
	lastErr    string
}

// New creates a new run controller. journal may be nil.
func New(engine *dispatch.Engine, campaigns *repository.CampaignRepository, deliveries *repository.DeliveryRepository, journal Journal, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		engine:     engine,
		campaigns:  campaigns,
		deliveries: deliveries,
		journal:    journal,
		logger:     logger.With("component", "runner"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the pre-flight checks and launches the pass in the background.
// Pre-flight errors are returned to the caller.
func (c *Controller) Start(ctx context.Context, campaignID string) error {
	c.mu.Lock()
	if c.reserved {
		active := c.campaignID
		c.mu.Unlock()
		return fmt.Errorf("%w: run of %s in progress", dispatch.ErrAlreadyRunning, active)
	}
	previous, previousProgress := c.campaignID, c.progress
	stop := make(chan struct{})
	c.reserved = true
	c.campaignID = campaignID
	c.progress = dispatch.Progress{CampaignID: campaignID}
	c.stop = stop
	c.stopping = false
	c.mu.Unlock()

	pass, err := c.engine.Prepare(ctx, campaignID, c.isRunning)
	if err != nil {
		c.mu.Lock()
		c.reserved = false
		c.stopping = false
		c.campaignID = previous
		c.progress = previousProgress
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})

	// A stop issued during pre-flight has already closed stop; the pass
	// sees it before its first send.
	c.mu.Lock()
	c.running = true
	c.done = done
	c.startedAt = time.Now()
	c.progress = dispatch.Progress{CampaignID: campaignID, Total: pass.Total()}
	c.mu.Unlock()

	metrics.SetRunActive(true)
	c.logger.Info("run started", "campaign_id", campaignID, "pending", pass.Total())

	go c.run(pass, stop, done)
	return nil
}

func (c *Controller) run(pass *dispatch.Pass, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	res, err := pass.Run(c.ctx, stop, c.observe)

	c.mu.Lock()
	c.running = false
	c.reserved = false
	c.stopping = false
	c.last = &res
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	metrics.SetRunActive(false)
	c.logger.Info("run finished",
		"campaign_id", res.CampaignID,
		"halt", res.Halt,
		"sent", res.Sent,
		"failed", res.Failed,
		"completed", res.Completed,
	)

	if c.journal == nil {
		return
	}
	rec := &history.Record{
		CampaignID:   res.CampaignID,
		CampaignName: pass.Campaign().Name,
		Total:        res.Total,
		Sent:         res.Sent,
		Failed:       res.Failed,
		Halt:         string(res.Halt),
		Completed:    res.Completed,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if err := c.journal.Append(context.Background(), rec); err != nil {
		c.logger.Error("failed to record run", "campaign_id", res.CampaignID, "error", err)
	}
}

func (c *Controller) observe(p dispatch.Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
}

func (c *Controller) isRunning(campaignID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.campaignID == campaignID
}

// Status returns a snapshot of the current or most recent run
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Active:     c.reserved,
		Stopping:   c.stopping,
		CampaignID: c.campaignID,
		Progress:   c.progress,
		LastError:  c.lastErr,
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		s.StartedAt = &started
	}
	if c.last != nil {
		last := *c.last
		s.LastResult = &last
	}
	return s
}

// Stop asks the running pass to halt after the send in flight. A stop
// during pre-flight halts the pass before its first send.
// It reports whether a run was active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.reserved {
		return false
	}
	if !c.stopping {
		close(c.stop)
		c.stopping = true
		c.logger.Info("stop requested", "campaign_id", c.campaignID)
	}
	return true
}

// Reset sets every delivery of a campaign back to pending. A completed
// campaign is reopened.
func (c *Controller) Reset(ctx context.Context, campaignID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reserved && c.campaignID == campaignID {
		return 0, fmt.Errorf("%w: %s", ErrRunActive, campaignID)
	}

	campaign, err := c.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return 0, fmt.Errorf("%w: %s", dispatch.ErrNotFound, campaignID)
	}

	n, err := c.deliveries.ResetCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset deliveries: %w", err)
	}
	if err := c.campaigns.Reopen(ctx, campaignID); err != nil {
		return n, fmt.Errorf("failed to reopen campaign: %w", err)
	}

	metrics.AddDeliveriesReset(n)
	c.logger.Info("campaign reset", "campaign_id", campaignID, "deliveries", n)
	return n, nil
}

// ResetAll sets every delivery of every campaign back to pending
func (c *Controller) ResetAll(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reserved {
		return 0, fmt.Errorf("%w: %s", ErrRunActive, c.campaignID)
	}

	n, err := c.deliveries.ResetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset deliveries: %w", err)
	}
	if err := c.campaigns.ReopenAll(ctx); err != nil {
		return n, fmt.Errorf("failed to reopen campaigns: %w", err)
	}

	metrics.AddDeliveriesReset(n)
	c.logger.Info("all campaigns reset", "deliveries", n)
	return n, nil
}

// Reseed adds list addresses that joined after the first start
func (c *Controller) Reseed(ctx context.Context, campaignID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reserved && c.campaignID == campaignID {
		return 0, fmt.Errorf("%w: %s", ErrRunActive, campaignID)
	}
	return c.engine.Reseed(ctx, campaignID)
}

// Wait blocks until the running pass, if any, has finished
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Shutdown stops the running pass and waits for it. When ctx expires first
// the pass is canceled and ctx's error is returned.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		c.cancel()
		return nil
	}

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		c.logger.Warn("shutdown timed out waiting for run")
		return ctx.Err()
	}
}
