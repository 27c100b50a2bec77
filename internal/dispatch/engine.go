// Package dispatch runs campaign passes: it walks the pending deliveries of a
// campaign, enforces the daily quota, sends, paces and records every outcome.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/models"
	"github.com/foxzi/sendry-campaign/internal/quota"
	"github.com/foxzi/sendry-campaign/internal/repository"
	"github.com/foxzi/sendry-campaign/internal/smtp"
)

// Dialer opens a relay session for a profile
type Dialer interface {
	Dial(ctx context.Context, profile *models.Profile) (smtp.Conn, error)
}

// Deps holds the stores and transport the engine works with
type Deps struct {
	Campaigns  *repository.CampaignRepository
	Lists      *repository.ListRepository
	Deliveries *repository.DeliveryRepository
	Profiles   *repository.ProfileRepository
	Settings   *repository.SettingsRepository
	Quota      *quota.Tracker
	Dialer     Dialer
}

// Options tunes the engine
type Options struct {
	// QuotaScope is config.QuotaScopePool or config.QuotaScopeCampaign
	QuotaScope string
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine prepares and runs dispatch passes
type Engine struct {
	campaigns  *repository.CampaignRepository
	lists      *repository.ListRepository
	deliveries *repository.DeliveryRepository
	profiles   *repository.ProfileRepository
	settings   *repository.SettingsRepository
	quota      *quota.Tracker
	dialer     Dialer

	quotaScope string
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates a new dispatch engine
func NewEngine(deps Deps, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QuotaScope == "" {
		opts.QuotaScope = config.QuotaScopePool
	}
	return &Engine{
		campaigns:  deps.Campaigns,
		lists:      deps.Lists,
		deliveries: deps.Deliveries,
		profiles:   deps.Profiles,
		settings:   deps.Settings,
		quota:      deps.Quota,
		dialer:     deps.Dialer,
		quotaScope: opts.QuotaScope,
		logger:     opts.Logger.With("component", "dispatch"),
		now:        opts.Now,
	}
}

func (e *Engine) scopeFor(campaignID string) quota.Scope {
	if e.quotaScope == config.QuotaScopeCampaign {
		return quota.Campaign(campaignID)
	}
	return quota.Pool()
}

// Prepare runs the pre-flight checks of a pass. On success the campaign is
// in_progress, its deliveries exist and the returned Pass holds a verified
// relay session. active reports whether a run of the campaign is live; it
// may be nil.
func (e *Engine) Prepare(ctx context.Context, campaignID string, active func(string) bool) (*Pass, error) {
	c, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}
	switch c.Status {
	case models.CampaignInProgress:
		if active != nil && active(c.ID) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, c.ID)
		}
	case models.CampaignCompleted:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, c.ID)
	}

	profile, err := e.loadProfile(ctx, c)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Template) == "" {
		return nil, fmt.Errorf("%w: campaign %s has no subject or template", ErrConfiguration, c.ID)
	}
	from := c.FromEmail
	if from == "" {
		from = profile.Username
	}
	if !email.Valid(from) {
		return nil, fmt.Errorf("%w: campaign %s has no valid sender address", ErrConfiguration, c.ID)
	}

	pacing, err := e.settings.Pacing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pacing settings: %w", err)
	}
	vars, err := e.settings.Variables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}

	existing, err := e.deliveries.Count(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	var snapshot []string
	if existing == 0 {
		snapshot, err = e.listAddresses(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	// Deliveries stay untouched until the relay has been verified
	conn, err := e.dialer.Dial(ctx, profile)
	if err != nil {
		metrics.IncTransportErrors("dial")
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	if err := conn.Verify(ctx); err != nil {
		conn.Close()
		metrics.IncTransportErrors("verify")
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	startedAt := e.now()
	if err := e.campaigns.MarkInProgress(ctx, c.ID, startedAt); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to mark campaign in progress: %w", err)
	}
	if len(snapshot) > 0 {
		added, err := e.deliveries.Seed(ctx, c.ID, snapshot)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to seed deliveries: %w", err)
		}
		e.logger.Info("deliveries seeded", "campaign_id", c.ID, "count", added)
	}

	pending, err := e.deliveries.Pending(ctx, c.ID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to load pending deliveries: %w", err)
	}

	return &Pass{
		engine:    e,
		campaign:  c,
		from:      from,
		conn:      conn,
		pending:   pending,
		pacing:    pacing,
		vars:      vars,
		scope:     e.scopeFor(c.ID),
		startedAt: startedAt,
		logger:    e.logger.With("campaign_id", c.ID),
	}, nil
}

func (e *Engine) loadProfile(ctx context.Context, c *models.Campaign) (*models.Profile, error) {
	if c.ProfileID == "" {
		return nil, fmt.Errorf("%w: campaign %s has no smtp profile", ErrConfiguration, c.ID)
	}
	profile, err := e.profiles.GetByID(ctx, c.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("%w: smtp profile %s: %w", ErrConfiguration, c.ProfileID, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: smtp profile %s not found", ErrConfiguration, c.ProfileID)
	}
	return profile, nil
}

func (e *Engine) listAddresses(ctx context.Context, c *models.Campaign) ([]string, error) {
	if c.ListID == "" {
		return nil, fmt.Errorf("%w: campaign %s has no recipient list", ErrConfiguration, c.ID)
	}
	list, err := e.lists.GetByID(ctx, c.ListID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient list: %w", err)
	}
	if list == nil {
		return nil, fmt.Errorf("%w: recipient list %s not found", ErrConfiguration, c.ListID)
	}
	items, err := e.lists.Items(ctx, c.ListID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, list.Name)
	}
	addrs := make([]string, len(items))
	for i, item := range items {
		addrs[i] = item.Email
	}
	return addrs, nil
}

// RunPass prepares and runs a pass in the foreground
func (e *Engine) RunPass(ctx context.Context, campaignID string, observe Observer) (Result, error) {
	pass, err := e.Prepare(ctx, campaignID, nil)
	if err != nil {
		return Result{CampaignID: campaignID}, err
	}
	return pass.Run(ctx, nil, observe)
}

// Reseed adds list addresses that have no delivery yet as pending.
// A completed campaign that gains deliveries is reopened.
func (e *Engine) Reseed(ctx context.Context, campaignID string) (int, error) {
	c, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}
	addrs, err := e.listAddresses(ctx, c)
	if err != nil {
		return 0, err
	}
	added, err := e.deliveries.Seed(ctx, c.ID, addrs)
	if err != nil {
		return 0, fmt.Errorf("failed to seed deliveries: %w", err)
	}
	if added > 0 && c.Status == models.CampaignCompleted {
		if err := e.campaigns.Reopen(ctx, c.ID); err != nil {
			return added, fmt.Errorf("failed to reopen campaign: %w", err)
		}
	}
	e.logger.Info("campaign reseeded", "campaign_id", c.ID, "added", added)
	return added, nil
}
