package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-credentials/core"
)

// devFallbackKey keeps local development running without key provisioning.
// Resolve rejects it outside development environments.
const devFallbackKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

const envelopeSeparator = ":"

// nonceSize is 128 bits, matching the envelopes written by the legacy
// manager so its files stay readable.
const nonceSize = 16

// AppKeySecretProvider seals payloads with AES-256-GCM and serializes them
// as hex(nonce):hex(tag):hex(ciphertext). The envelope is line-safe ASCII so
// it survives text-mode storage and diffs cleanly.
type AppKeySecretProvider struct {
	key []byte
}

func NewAppKeySecretProvider(keyMaterial []byte) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	return &AppKeySecretProvider{key: normalizeKey(key)}, nil
}

func NewAppKeySecretProviderFromString(key string) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key))
}

// Resolve builds the provider from configuration. A missing key is an error
// in production; anywhere else the development fallback key is used and a
// warning logged so the condition is visible.
func Resolve(key string, environment string, logger core.Logger) (*AppKeySecretProvider, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		if isProduction(environment) {
			return nil, fmt.Errorf("security: encryption key is required in production")
		}
		glog.Ensure(logger).Warn("encryption key not configured, using development fallback key")
		key = devFallbackKey
	}
	return NewAppKeySecretProviderFromString(key)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	envelope := strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, envelopeSeparator)
	return []byte(envelope), nil
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	parts := strings.Split(strings.TrimSpace(string(ciphertext)), envelopeSeparator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("security: malformed envelope: expected 3 segments, got %d", len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("security: decode auth tag: %w", err)
	}
	payload, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	if len(tag) != gcm.Overhead() {
		return nil, fmt.Errorf("security: invalid auth tag length %d", len(tag))
	}

	sealed := append(append([]byte(nil), payload...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

// normalizeKey prefers a 64-char hex string decoded to 32 raw bytes, then
// raw AES key lengths, then a SHA-256 digest of whatever arrived.
func normalizeKey(value []byte) []byte {
	if len(value) == 64 {
		if decoded, err := hex.DecodeString(string(value)); err == nil {
			return decoded
		}
	}
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

func isProduction(environment string) bool {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
