// Package crypto wraps authenticated symmetric encryption for secret payloads.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the required master key length in bytes (AES-256).
const KeySize = 32

// ErrIntegrity indicates the ciphertext was not produced by the configured key
// or has been modified since encryption.
var ErrIntegrity = errors.New("crypto: ciphertext failed integrity check")

// Envelope encrypts and decrypts secret payloads under a single static key.
// The key is fixed for the process lifetime; there is no multi-key support.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope builds an envelope from a raw 32-byte key.
func NewEnvelope(key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Envelope{aead: aead}, nil
}

// NewEnvelopeFromBase64 decodes a base64 master key and builds an envelope.
func NewEnvelopeFromBase64(encoded string) (*Envelope, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return NewEnvelope(key)
}

// GenerateKey produces a fresh random master key. Running on a generated key
// means every ciphertext becomes unreadable after a restart.
func GenerateKey() []byte {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("crypto: read random key: %v", err))
	}
	return key
}

// Seal encrypts the plaintext. The random nonce is prefixed to the ciphertext.
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a ciphertext produced by Seal. Any tampering, truncation or
// key mismatch yields ErrIntegrity; altered plaintext is never returned.
func (e *Envelope) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < e.aead.NonceSize() {
		return nil, ErrIntegrity
	}
	nonce, sealed := ciphertext[:e.aead.NonceSize()], ciphertext[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
