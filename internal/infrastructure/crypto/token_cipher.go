// Package crypto encrypts marketplace OAuth tokens at rest.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/marketsync/internal/domain/integration"
	"golang.org/x/crypto/chacha20poly1305"
)

const envelopeVersion = "v1"

var (
	// ErrUnknownKey is returned when a ciphertext names a key that is not configured
	ErrUnknownKey = errors.New("crypto: unknown key id")
	// ErrMalformedCiphertext is returned for values not produced by TokenCipher
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")
)

// TokenCipher seals tokens with XChaCha20-Poly1305.
// Ciphertexts have the form "v1:<key id>:<base64url(nonce|sealed)>" so that
// the active key can be rotated while older rows stay readable.
type TokenCipher struct {
	activeID string
	aeads    map[string]cipher.AEAD
}

// NewTokenCipher builds a cipher from encoded 32-byte keys.
// Keys may be hex, standard base64 or a raw 32-character string.
func NewTokenCipher(activeKeyID string, keys map[string]string) (*TokenCipher, error) {
	if activeKeyID == "" {
		return nil, errors.New("crypto: active key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, activeKeyID)
	}

	c := &TokenCipher{activeID: activeKeyID, aeads: make(map[string]cipher.AEAD, len(keys))}
	for id, encoded := range keys {
		if id == "" || strings.Contains(id, ":") {
			return nil, fmt.Errorf("crypto: invalid key id %q", id)
		}
		key, err := decodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("crypto: key %s: %w", id, err)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: key %s: %w", id, err)
		}
		c.aeads[id] = aead
	}
	return c, nil
}

// NewEphemeralTokenCipher uses a random key that lives as long as the process.
// Tokens sealed with it are unreadable after a restart.
func NewEphemeralTokenCipher() (*TokenCipher, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return NewTokenCipher("ephemeral", map[string]string{"ephemeral": hex.EncodeToString(key)})
}

// Encrypt seals plaintext with the active key. The empty string stays empty.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead := c.aeads[c.activeID]

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(c.activeID))

	return envelopeVersion + ":" + c.activeID + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt with any configured key
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return "", ErrMalformedCiphertext
	}
	keyID, payload := parts[1], parts[2]

	aead, ok := c.aeads[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, []byte(keyID))
	if err != nil {
		return "", fmt.Errorf("crypto: open token: %w", err)
	}
	return string(plain), nil
}

// NeedsRotation reports whether a ciphertext was sealed with a non-active key
func (c *TokenCipher) NeedsRotation(ciphertext string) bool {
	parts := strings.SplitN(ciphertext, ":", 3)
	return len(parts) == 3 && parts[1] != c.activeID
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if len(encoded) == chacha20poly1305.KeySize {
		return []byte(encoded), nil
	}
	return nil, fmt.Errorf("want %d bytes", chacha20poly1305.KeySize)
}

var _ integration.TokenCipher = (*TokenCipher)(nil)
