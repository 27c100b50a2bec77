package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/foxzi/sendry-campaign/internal/models"
)

type profileInput struct {
	Name       string `json:"name" validate:"required"`
	Host       string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	Encryption string `json:"encryption" validate:"encryption"`
	Secret     string `json:"-" validate:"max=4"`
}

func TestStruct(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name       string
		input      any
		wantFields []string
	}{
		{
			name:  "valid",
			input: profileInput{Name: "relay", Host: "smtp.example.com", Port: 587, Encryption: "tls"},
		},
		{
			name:       "missing fields use json names",
			input:      profileInput{Encryption: "none"},
			wantFields: []string{"name", "host", "port"},
		},
		{
			name:       "bad encryption",
			input:      profileInput{Name: "relay", Host: "127.0.0.1", Port: 25, Encryption: "starttls"},
			wantFields: []string{"encryption"},
		},
		{
			name:       "untagged json name falls back to field name",
			input:      profileInput{Name: "relay", Host: "127.0.0.1", Port: 25, Secret: "too long"},
			wantFields: []string{"Secret"},
		},
		{
			name:       "pacing must not be negative",
			input:      models.PacingSettings{DelayMs: -1, MaxSendsPerDay: 5},
			wantFields: []string{"delay_ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Struct() error = %v", err)
				}
				return
			}

			var verr Errors
			if !errors.As(err, &verr) {
				t.Fatalf("Struct() error = %v, want Errors", err)
			}
			if len(verr) != len(tt.wantFields) {
				t.Errorf("Struct() errors = %v, want fields %v", verr, tt.wantFields)
			}
			for _, f := range tt.wantFields {
				if verr[f] == "" {
					t.Errorf("missing error for %s in %v", f, verr)
				}
			}
		})
	}
}

func TestEncryptionMessage(t *testing.T) {
	v := MustNew()
	err := v.Struct(profileInput{Name: "relay", Host: "127.0.0.1", Port: 25, Encryption: "x"})

	var verr Errors
	if !errors.As(err, &verr) {
		t.Fatalf("Struct() error = %v", err)
	}
	if !strings.Contains(verr["encryption"], "none, ssl or tls") {
		t.Errorf("message = %q", verr["encryption"])
	}
}

func TestErrorsString(t *testing.T) {
	if got := (Errors{}).Error(); got != "validation error" {
		t.Errorf("Error() = %q", got)
	}
	if got := (Errors{"name": "name is required"}).Error(); got != `{"name":"name is required"}` {
		t.Errorf("Error() = %q", got)
	}
}
