// Package smtp delivers campaign messages through an authenticated relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/sendry-campaign/internal/dkim"
	"github.com/foxzi/sendry-campaign/internal/models"
)

// Security is how the connection to the relay is protected
type Security int

const (
	SecurityPlain Security = iota
	SecurityStartTLS
	SecurityImplicitTLS
)

func (s Security) String() string {
	switch s {
	case SecurityStartTLS:
		return "starttls"
	case SecurityImplicitTLS:
		return "tls"
	default:
		return "plain"
	}
}

// SecurityFor picks the connection security for a profile.
// Well-known ports win over the encryption setting: 587 always upgrades
// with STARTTLS and 465 always starts with TLS.
func SecurityFor(port int, encryption string) Security {
	switch port {
	case 587:
		return SecurityStartTLS
	case 465:
		return SecurityImplicitTLS
	}
	switch encryption {
	case models.EncryptionSSL:
		return SecurityImplicitTLS
	case models.EncryptionTLS:
		return SecurityStartTLS
	default:
		return SecurityPlain
	}
}

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Code      int
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}

// FailureClass labels a send error as "temporary" or "permanent"
func FailureClass(err error) string {
	if IsTemporaryError(err) {
		return "temporary"
	}
	return "permanent"
}

// Conn is an open, authenticated session with a relay
type Conn interface {
	// Verify checks that the session is still usable
	Verify(ctx context.Context) error
	// Send delivers one message
	Send(ctx context.Context, msg *Message) error
	Close() error
}

// Options configures a Dialer
type Options struct {
	Hostname           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Signer             *dkim.Signer
	Logger             *slog.Logger
}

// Dialer opens relay sessions for SMTP profiles
type Dialer struct {
	hostname string
	timeout  time.Duration
	insecure bool
	signer   *dkim.Signer
	logger   *slog.Logger
}

// NewDialer creates a new Dialer
func NewDialer(opts Options) *Dialer {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Hostname == "" {
		opts.Hostname = "localhost"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dialer{
		hostname: opts.Hostname,
		timeout:  opts.Timeout,
		insecure: opts.InsecureSkipVerify,
		signer:   opts.Signer,
		logger:   opts.Logger,
	}
}

// Dial connects and authenticates against the profile's relay
func (d *Dialer) Dial(ctx context.Context, profile *models.Profile) (Conn, error) {
	c := &conn{
		dialer:  d,
		profile: profile,
		logger:  d.logger.With("relay", profile.Host, "port", profile.Port),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

type conn struct {
	dialer  *Dialer
	profile *models.Profile
	client  *smtp.Client
	logger  *slog.Logger
}

func (c *conn) connect(ctx context.Context) error {
	p := c.profile
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	security := SecurityFor(p.Port, p.Encryption)

	tlsConfig := &tls.Config{
		ServerName:         p.Host,
		InsecureSkipVerify: c.dialer.insecure,
		MinVersion:         tls.VersionTLS12,
	}

	netDialer := &net.Dialer{Timeout: c.dialer.timeout}

	var nc net.Conn
	var err error
	if security == SecurityImplicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
		nc, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		nc, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}

	var client *smtp.Client
	if security == SecurityStartTLS {
		// The first EHLO and the upgrade happen inside the constructor
		nc.SetDeadline(time.Now().Add(c.dialer.timeout))
		client, err = smtp.NewClientStartTLS(nc, tlsConfig)
		if err != nil {
			return startTLSError(addr, err)
		}
		nc.SetDeadline(time.Time{})
	} else {
		client = smtp.NewClient(nc)
	}
	client.CommandTimeout = c.dialer.timeout
	client.SubmissionTimeout = c.dialer.timeout

	if err := client.Hello(c.dialer.hostname); err != nil {
		client.Close()
		return categorizeError(err, "EHLO")
	}

	if p.Username != "" {
		auth, err := saslClient(client, p.Username, p.Password)
		if err != nil {
			client.Close()
			return err
		}
		if err := client.Auth(auth); err != nil {
			client.Close()
			return categorizeError(err, "AUTH")
		}
	}

	c.client = client
	c.logger.Debug("relay session opened", "security", security.String())
	return nil
}

// startTLSError classifies a failed STARTTLS negotiation. A relay that
// does not offer the extension will not start offering it on retry.
func startTLSError(addr string, err error) *DeliveryError {
	if strings.Contains(err.Error(), "doesn't support STARTTLS") {
		return &DeliveryError{
			Temporary: false,
			Message:   fmt.Sprintf("%s does not support STARTTLS", addr),
		}
	}
	return categorizeError(err, "STARTTLS")
}

func saslClient(client *smtp.Client, username, password string) (sasl.Client, error) {
	switch {
	case client.SupportsAuth(sasl.Plain):
		return sasl.NewPlainClient("", username, password), nil
	case client.SupportsAuth(sasl.Login):
		return sasl.NewLoginClient(username, password), nil
	default:
		return nil, &DeliveryError{
			Temporary: false,
			Message:   "relay supports neither AUTH PLAIN nor AUTH LOGIN",
		}
	}
}

// Verify checks the session with NOOP
func (c *conn) Verify(ctx context.Context) error {
	if c.client == nil {
		return c.connect(ctx)
	}
	if err := c.client.Noop(); err != nil {
		return categorizeError(err, "NOOP")
	}
	return nil
}

// Send delivers one message. A session broken by a previous failure is
// reopened first.
func (c *conn) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.client == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	data, err := msg.Bytes(c.dialer.hostname)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: err.Error()}
	}
	data = c.sign(msg.From, data)

	if err := c.transmit(msg.From, msg.To, data); err != nil {
		// Leave the session ready for the next recipient
		if rerr := c.client.Reset(); rerr != nil {
			c.logger.Debug("session reset failed, will reconnect", "error", rerr)
			c.client.Close()
			c.client = nil
		}
		return err
	}
	return nil
}

func (c *conn) transmit(from, to string, data []byte) error {
	if err := c.client.Mail(from, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := c.client.Rcpt(to, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", to))
	}

	wc, err := c.client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}
	return nil
}

func (c *conn) sign(from string, data []byte) []byte {
	signer := c.dialer.signer
	if signer == nil || !signer.Covers(from) {
		return data
	}
	signed, err := signer.Sign(data)
	if err != nil {
		c.logger.Warn("DKIM signing failed, sending unsigned",
			"domain", signer.Domain(),
			"error", err,
		)
		return data
	}
	return signed
}

// Close ends the session with QUIT
func (c *conn) Close() error {
	if c.client == nil {
		return nil
	}
	client := c.client
	c.client = nil
	if err := client.Quit(); err != nil {
		client.Close()
		return err
	}
	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	code := 0
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		code = smtpErr.Code
	} else if m := smtpCodePattern.FindStringSubmatch(err.Error()); len(m) > 1 {
		code, _ = strconv.Atoi(m[1])
	}

	switch {
	case code >= 500:
		return &DeliveryError{Temporary: false, Code: code, Message: msg}
	case code >= 400:
		return &DeliveryError{Temporary: true, Code: code, Message: msg}
	}

	// Auth problems without a code are not going to fix themselves
	if strings.Contains(strings.ToLower(err.Error()), "auth") {
		return &DeliveryError{Temporary: false, Message: msg}
	}
	return &DeliveryError{Temporary: true, Message: msg}
}
