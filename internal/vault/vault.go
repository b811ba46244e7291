package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/subsight/internal/config"
)

// ErrCredential marks credential material that cannot be decrypted.
// Callers must not retry; the stored key or the secret is wrong.
var ErrCredential = errors.New("vault: invalid credential material")

const nonceSize = 12

// Codec encrypts and decrypts Stripe API keys with AES-256-GCM.
// Ciphertext is stored hex-encoded with a bytea-style "\x" prefix,
// nonce prepended to the sealed payload.
type Codec struct {
	key []byte
}

// NewCodec derives the data key from configuration. ENCRYPTION_SECRET
// wins; otherwise the first 32 bytes of the service key are used.
func NewCodec(cfg config.Config) (*Codec, error) {
	secret := cfg.EncryptionSecret
	if secret == "" {
		secret = cfg.ServiceKey
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("vault: secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Codec{key: []byte(secret[:32])}, nil
}

// NewCodecFromKey builds a codec from a raw 32-byte key, used by tests.
func NewCodecFromKey(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes, got %d", len(key))
	}
	return &Codec{key: key}, nil
}

// Encrypt seals the plaintext and returns the storable representation.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, sealed...)
	return "\\x" + hex.EncodeToString(payload), nil
}

// Decrypt opens a stored credential. Any malformed or tampered input
// maps to ErrCredential so callers can mark the connection invalid.
func (c *Codec) Decrypt(stored string) (string, error) {
	encoded := strings.TrimPrefix(stored, "\\x")
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	if len(raw) <= nonceSize {
		return "", fmt.Errorf("%w: payload too short", ErrCredential)
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	return string(plaintext), nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("vault: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: build aead: %w", err)
	}
	return gcm, nil
}
