package dkim

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()

	key, err := GenerateKeyFile(filepath.Join(t.TempDir(), "dkim.key"))
	if err != nil {
		t.Fatalf("GenerateKeyFile() error = %v", err)
	}
	return NewSigner(key, "Example.com", "mail")
}

func TestCovers(t *testing.T) {
	s := testSigner(t)

	tests := []struct {
		from string
		want bool
	}{
		{"news@example.com", true},
		{"News <news@EXAMPLE.com>", true},
		{"news@mail.example.com", true},
		{"news@badexample.com", false},
		{"news@example.org", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := s.Covers(tt.from); got != tt.want {
				t.Errorf("Covers(%q) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestSignVerifies(t *testing.T) {
	s := testSigner(t)

	message := []byte("From: news@example.com\r\nTo: a@x.com\r\nSubject: Hello\r\n\r\n<p>Hi</p>\r\n")
	signed, err := s.Sign(message)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !bytes.HasPrefix(signed, []byte("DKIM-Signature:")) {
		t.Fatalf("signed message does not start with DKIM-Signature header")
	}

	record, err := s.DNSRecord()
	if err != nil {
		t.Fatalf("DNSRecord() error = %v", err)
	}

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != s.DNSName() {
				t.Errorf("lookup of %q, want %q", domain, s.DNSName())
			}
			return []string{record}, nil
		},
	})
	if err != nil {
		t.Fatalf("VerifyWithOptions() error = %v", err)
	}
	if len(verifications) != 1 || verifications[0].Err != nil {
		t.Fatalf("verification failed: %+v", verifications)
	}
	if verifications[0].Domain != "example.com" {
		t.Errorf("signed domain = %q, want example.com", verifications[0].Domain)
	}
}

func TestDNSName(t *testing.T) {
	s := testSigner(t)
	if got := s.DNSName(); got != "mail._domainkey.example.com" {
		t.Errorf("DNSName() = %q", got)
	}
	record, _ := s.DNSRecord()
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() = %q", record)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	dir := t.TempDir()

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	files := map[string][]byte{
		"pkcs1.pem": pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		"pkcs8.pem": pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
		"other.pem": pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("x")}),
		"junk.pem":  []byte("not pem"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		file    string
		wantErr bool
	}{
		{"pkcs1.pem", false},
		{"pkcs8.pem", false},
		{"other.pem", true},
		{"junk.pem", true},
		{"missing.pem", true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := LoadPrivateKey(filepath.Join(dir, tt.file))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadPrivateKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(key) {
				t.Error("loaded key differs from the written one")
			}
		})
	}
}

func TestGenerateKeyFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "dkim.key")
	if _, err := GenerateKeyFile(path); err != nil {
		t.Fatalf("GenerateKeyFile() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}
}
