// Package secret provides the symmetric codec used for cookie payloads.
//
// Values are sealed with AES-256-GCM. The purpose tag is bound as
// additional authenticated data, so a ciphertext minted for one purpose
// ("session") can never be replayed under another ("anonymous").
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCrypto is returned for any ciphertext that cannot be opened:
// truncated input, bad encoding, forged data, or a purpose mismatch.
// Callers on the request path treat it as "not authenticated".
var ErrCrypto = errors.New("cannot decrypt value")

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Codec seals and opens opaque strings under a fixed process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec from a raw 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under the given purpose tag and returns a
// base64url string (no padding). The nonce is prepended to the ciphertext.
func (c *Codec) Encrypt(plaintext, purpose string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(purpose))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt with the same purpose tag.
// Every failure mode maps to ErrCrypto; the underlying cause is wrapped
// for logging but callers should only test errors.Is(err, ErrCrypto).
func (c *Codec) Decrypt(ciphertext, purpose string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCrypto, err)
	}

	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCrypto)
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCrypto, err)
	}

	return string(plaintext), nil
}
