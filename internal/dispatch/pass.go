package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/models"
	"github.com/foxzi/sendry-campaign/internal/quota"
	"github.com/foxzi/sendry-campaign/internal/smtp"
)

// Halt is why a pass ended
type Halt string

const (
	// HaltExhausted means every pending delivery was attempted
	HaltExhausted Halt = "exhausted"
	// HaltQuota means the daily send limit was reached
	HaltQuota Halt = "quota"
	// HaltStopped means a stop was requested
	HaltStopped Halt = "stopped"
	// HaltCanceled means the context was canceled, usually on shutdown
	HaltCanceled Halt = "canceled"
	// HaltError means a store write failed and the pass was aborted
	HaltError Halt = "error"
)

var errSendCanceled = errors.New("send canceled")

// Progress is a snapshot of a running pass
type Progress struct {
	CampaignID string `json:"campaign_id"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Current    string `json:"current,omitempty"`
}

// Observer receives progress updates. It is called from the pass goroutine.
type Observer func(Progress)

// Result summarizes a finished pass
type Result struct {
	CampaignID string    `json:"campaign_id"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Halt       Halt      `json:"halt"`
	QuotaUsed  int       `json:"quota_used,omitempty"`
	Completed  bool      `json:"completed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Pass is a prepared dispatch pass over the pending deliveries of a campaign
type Pass struct {
	engine    *Engine
	campaign  *models.Campaign
	from      string
	conn      smtp.Conn
	pending   []models.Delivery
	pacing    models.PacingSettings
	vars      map[string]string
	scope     quota.Scope
	startedAt time.Time
	logger    *slog.Logger
}

// Campaign returns the campaign being dispatched
func (p *Pass) Campaign() *models.Campaign {
	return p.campaign
}

// Total returns the number of deliveries the pass will attempt at most
func (p *Pass) Total() int {
	return len(p.pending)
}

// Close releases the relay session of a pass that will not be run
func (p *Pass) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// Run sends to every pending delivery until they are exhausted, the quota
// is reached, stop is closed or ctx is canceled. A stop never interrupts a
// send in flight. The returned error is non-nil only when a store write
// failed.
func (p *Pass) Run(ctx context.Context, stop <-chan struct{}, observe Observer) (Result, error) {
	defer p.Close()

	res := Result{
		CampaignID: p.campaign.ID,
		Total:      len(p.pending),
		StartedAt:  p.startedAt,
	}
	progress := Progress{CampaignID: p.campaign.ID, Total: len(p.pending)}
	notify := func() {
		if observe != nil {
			observe(progress)
		}
	}

	p.logger.Info("dispatch pass started",
		"pending", len(p.pending),
		"delay_ms", p.pacing.DelayMs,
		"max_sends_per_day", p.pacing.MaxSendsPerDay,
		"quota_scope", p.scope.String(),
	)
	notify()

	// Outcome writes must land even when ctx is canceled mid-send
	store := context.WithoutCancel(ctx)

	var runErr error
	res.Halt = HaltExhausted

loop:
	for i, d := range p.pending {
		if stopped(stop) {
			res.Halt = HaltStopped
			break
		}
		if ctx.Err() != nil {
			res.Halt = HaltCanceled
			break
		}

		if !p.pacing.Unlimited() {
			exhausted, used, err := p.engine.quota.Exhausted(ctx, p.scope, p.pacing.MaxSendsPerDay)
			if err != nil {
				if ctx.Err() != nil {
					res.Halt = HaltCanceled
					break
				}
				runErr = err
				res.Halt = HaltError
				break
			}
			res.QuotaUsed = used
			metrics.SetQuotaSentToday(used)
			if exhausted {
				p.logger.Info("daily send limit reached", "sent_today", used, "limit", p.pacing.MaxSendsPerDay)
				metrics.IncQuotaHalts()
				res.Halt = HaltQuota
				break
			}
		}

		progress.Current = d.Email
		notify()

		if err := p.deliver(ctx, store, d); err != nil {
			if errors.Is(err, errSendCanceled) {
				res.Halt = HaltCanceled
				break
			}
			var de *DeliveryError
			if !errors.As(err, &de) {
				runErr = err
				res.Halt = HaltError
				break
			}
			res.Failed++
			progress.Failed++
			p.logger.Warn("delivery failed", "email", d.Email, "class", smtp.FailureClass(de.Err), "error", de.Err)
		} else {
			res.Sent++
			progress.Sent++
			p.logger.Debug("delivery sent", "email", d.Email)
		}
		progress.Current = ""
		notify()

		if stopped(stop) {
			res.Halt = HaltStopped
			break
		}
		if i == len(p.pending)-1 || p.pacing.DelayMs <= 0 {
			continue
		}

		timer := time.NewTimer(p.pacing.Delay())
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			res.Halt = HaltStopped
			break loop
		case <-ctx.Done():
			timer.Stop()
			res.Halt = HaltCanceled
			break loop
		}
	}

	if runErr == nil {
		completed, err := p.reconcile(store)
		if err != nil {
			runErr = err
			res.Halt = HaltError
		}
		res.Completed = completed
	}

	res.FinishedAt = p.engine.now()
	metrics.IncRuns(string(res.Halt))

	if runErr != nil {
		p.logger.Error("dispatch pass aborted", "error", runErr, "sent", res.Sent, "failed", res.Failed)
		return res, runErr
	}
	p.logger.Info("dispatch pass finished",
		"halt", res.Halt,
		"sent", res.Sent,
		"failed", res.Failed,
		"completed", res.Completed,
	)
	return res, nil
}

// deliver sends one message and records the outcome. A failed send is
// returned as *DeliveryError; any other error is a store failure.
func (p *Pass) deliver(ctx, store context.Context, d models.Delivery) error {
	vars := recipientVariables(p.vars, d.Email)
	msg := &smtp.Message{
		From:     p.from,
		FromName: p.campaign.FromName,
		To:       d.Email,
		Subject:  renderTemplate(p.campaign.Subject, vars),
		HTML:     renderTemplate(p.campaign.Template, vars),
		Headers:  map[string]string{"X-Campaign-ID": p.campaign.ID},
	}

	start := time.Now()
	sendErr := p.conn.Send(ctx, msg)
	elapsed := time.Since(start).Seconds()
	domain := email.ExtractDomain(d.Email)

	if sendErr != nil {
		if ctx.Err() != nil && errors.Is(sendErr, ctx.Err()) {
			// Never reached the relay, the delivery stays pending
			return errSendCanceled
		}
		metrics.ObserveDelivery(models.DeliveryFailed, domain, elapsed)
		metrics.IncDeliveryFailures(smtp.FailureClass(sendErr))
		if err := p.engine.deliveries.MarkFailed(store, d.ID, sendErr.Error()); err != nil {
			return fmt.Errorf("failed to record failed delivery %s: %w", d.ID, err)
		}
		return &DeliveryError{Email: d.Email, Err: sendErr}
	}

	metrics.ObserveDelivery(models.DeliverySent, domain, elapsed)
	if err := p.engine.deliveries.MarkSent(store, d.ID, p.engine.now()); err != nil {
		return fmt.Errorf("failed to record sent delivery %s: %w", d.ID, err)
	}
	return nil
}

// reconcile completes the campaign when no delivery is pending any more
func (p *Pass) reconcile(ctx context.Context) (bool, error) {
	stats, err := p.engine.deliveries.Stats(ctx, p.campaign.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load delivery stats: %w", err)
	}
	if stats.Pending > 0 {
		return false, nil
	}
	if err := p.engine.campaigns.MarkCompleted(ctx, p.campaign.ID, p.engine.now()); err != nil {
		return false, fmt.Errorf("failed to mark campaign completed: %w", err)
	}
	return true, nil
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
