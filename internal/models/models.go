package models

import "time"

// Campaign statuses
const (
	CampaignDraft      = "draft"
	CampaignInProgress = "in_progress"
	CampaignCompleted  = "completed"
)

// Delivery statuses
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Encryption modes of an SMTP profile
const (
	EncryptionNone = "none"
	EncryptionSSL  = "ssl"
	EncryptionTLS  = "tls"
)

// Campaign is a message sent to every address of a recipient list
type Campaign struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Subject     string     `json:"subject"`
	Template    string     `json:"template"`
	FromEmail   string     `json:"from_email,omitempty"`
	FromName    string     `json:"from_name,omitempty"`
	ListID      string     `json:"list_id"`
	ProfileID   string     `json:"profile_id"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RecipientList is a named set of addresses
type RecipientList struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TotalCount int       `json:"total_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListItem is one address of a recipient list
type ListItem struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportResult reports the outcome of adding addresses to a list
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// Profile holds outbound SMTP credentials
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Username   string    `json:"username,omitempty"`
	Password   string    `json:"-"`
	Encryption string    `json:"encryption"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Delivery is the per-campaign status of one recipient
type Delivery struct {
	ID           string     `json:"id"`
	CampaignID   string     `json:"campaign_id"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DeliveryStats counts deliveries of a campaign by status
type DeliveryStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// DeliveryFilter narrows delivery listings
type DeliveryFilter struct {
	Status string
	Limit  int
	Offset int
}

// PacingSettings controls the send rate. MaxSendsPerDay 0 means unlimited.
type PacingSettings struct {
	DelayMs        int `json:"delay_ms" validate:"gte=0"`
	MaxSendsPerDay int `json:"max_sends_per_day" validate:"gte=0"`
}

// Delay returns the pause between two sends
func (p PacingSettings) Delay() time.Duration {
	return time.Duration(p.DelayMs) * time.Millisecond
}

// Unlimited reports whether no daily limit applies
func (p PacingSettings) Unlimited() bool {
	return p.MaxSendsPerDay <= 0
}
