// Package vault encrypts OAuth and CalDAV credentials at rest.
//
// The teacher already pulls in golang.org/x/crypto (for bcrypt password
// hashing in internal/services/auth.go) but stores connected-account
// access/refresh tokens and CalDAV app-passwords as plain columns. This
// package extends that same dependency to cover them: the encryption key
// is derived from config.AppConfig.EncryptionKey via blake2b, and tokens
// are sealed with chacha20poly1305 (an AEAD, so tampering with a stored
// ciphertext is detected on read, not just silently decrypted wrong).
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("vault: ciphertext too short")

// Vault seals and opens secrets with a key derived once from a passphrase.
type Vault struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New derives a 256-bit key from passphrase via blake2b and builds a
// Vault around it. passphrase is config.AppConfig.EncryptionKey; any
// length is accepted since blake2b-256 fixes the output size regardless
// of input length.
func New(passphrase string) (*Vault, error) {
	key := blake2b.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("vault: building aead: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64-encoded nonce||ciphertext
// string suitable for storing directly in a text column.
func (v *Vault) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. An empty string round-trips to an empty string,
// matching how the teacher's token columns already treat "" as "no
// token stored".
func (v *Vault) Open(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("vault: decoding stored value: %w", err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("vault: opening ciphertext: %w", err)
	}
	return string(plaintext), nil
}
