// Package email provides common email address helpers.
package email

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		// Try simple extraction for malformed addresses
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(email[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// Normalize trims and lower-cases an address
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Valid reports whether a normalized address looks deliverable
func Valid(address string) bool {
	return addressPattern.MatchString(address)
}

// Parsed is the result of reading addresses from user input
type Parsed struct {
	Addresses []string
	Invalid   []string
}

// ParseText splits addresses separated by commas or newlines.
// Duplicates are dropped, first occurrence wins.
func ParseText(input string) Parsed {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	var p Parsed
	seen := make(map[string]bool)
	for _, f := range fields {
		p.add(f, seen)
	}
	return p
}

// ParseCSV reads addresses from CSV data. The "email" column is used when
// the header has one, otherwise the first column.
func ParseCSV(r io.Reader) (Parsed, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Parsed{}, nil
	}
	if err != nil {
		return Parsed{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	column := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "email") {
			column = i
			break
		}
	}

	var p Parsed
	seen := make(map[string]bool)

	// Headerless file: first row is data
	if column == -1 {
		column = 0
		if len(header) > 0 {
			p.add(header[0], seen)
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p, fmt.Errorf("failed to read CSV: %w", err)
		}
		if column >= len(record) {
			continue
		}
		p.add(record[column], seen)
	}

	return p, nil
}

func (p *Parsed) add(raw string, seen map[string]bool) {
	addr := Normalize(raw)
	if addr == "" {
		return
	}
	if !Valid(addr) {
		p.Invalid = append(p.Invalid, addr)
		return
	}
	if seen[addr] {
		return
	}
	seen[addr] = true
	p.Addresses = append(p.Addresses, addr)
}
