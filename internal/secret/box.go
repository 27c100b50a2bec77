// Package secret seals credentials stored in the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	prefix    = "enc:"
	nonceSize = 24
)

// ErrNoKey is returned when a sealed value is read without a key configured
var ErrNoKey = errors.New("secret: value is sealed but no key is configured")

// ErrDecrypt is returned when a sealed value cannot be opened with the key
var ErrDecrypt = errors.New("secret: decryption failed")

// Box seals and opens values with a symmetric key.
// A Box without a key stores values as plain text.
type Box struct {
	key *[32]byte
}

// NewBox creates a Box from a passphrase. Empty passphrase disables sealing.
func NewBox(passphrase string) *Box {
	if passphrase == "" {
		return &Box{}
	}
	key := sha256.Sum256([]byte(passphrase))
	return &Box{key: &key}
}

// Enabled reports whether values are sealed
func (b *Box) Enabled() bool {
	return b != nil && b.key != nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" || !b.Enabled() {
		return plaintext, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secret: failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, b.key)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed
// prefix are returned unchanged so rows written before a key was set stay readable.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if !b.Enabled() {
		return "", ErrNoKey
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
