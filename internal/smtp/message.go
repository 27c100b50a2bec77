package smtp

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Message is one campaign email addressed to a single recipient
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Headers  map[string]string
}

// Bytes renders the message as RFC 5322 data with an HTML body
func (m *Message) Bytes(hostname string) ([]byte, error) {
	msg := gomail.NewMessage()
	if m.FromName != "" {
		msg.SetAddressHeader("From", m.From, m.FromName)
	} else {
		msg.SetHeader("From", m.From)
	}
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), hostname))
	msg.SetDateHeader("Date", time.Now())
	for k, v := range m.Headers {
		msg.SetHeader(k, v)
	}
	msg.SetBody("text/html", m.HTML)

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	return buf.Bytes(), nil
}
