package hipaa

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// sealedMagic prefixes files written by an enabled Sealer.
var sealedMagic = []byte("SMHS1\x00")

var (
	// ErrSealedNoKey is returned when sealed data is read without a key.
	ErrSealedNoKey = errors.New("data is encrypted but no storage key is configured")
	// ErrNotSealed is returned when a keyed Sealer reads unencrypted data.
	// Files written before a key was configured must be recreated.
	ErrNotSealed = errors.New("data is not encrypted with the configured storage key")
)

// Sealer encrypts PHI written to local files (session, drafts) with
// AES-256-GCM. A Sealer built without a key passes data through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealer: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealer: create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromHex accepts the configured key as 64 hex characters. An empty
// key yields a pass-through Sealer and a warning.
func NewSealerFromHex(key string, logger zerolog.Logger) (*Sealer, error) {
	if key == "" {
		logger.Warn().Msg("storage encryption disabled: STORAGE_ENCRYPTION_KEY is not set")
		return &Sealer{}, nil
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	return NewSealer(raw)
}

// Enabled reports whether data is actually encrypted.
func (s *Sealer) Enabled() bool { return s != nil && s.aead != nil }

// Seal returns magic || nonce || ciphertext, or data itself when disabled.
func (s *Sealer) Seal(data []byte) ([]byte, error) {
	if !s.Enabled() {
		return data, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("seal: generate nonce: %w", err)
	}
	out := make([]byte, 0, len(sealedMagic)+len(nonce)+len(data)+s.aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, data, sealedMagic), nil
}

// Open reverses Seal. A disabled Sealer returns unsealed input as is; an
// enabled one rejects it.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	sealed := bytes.HasPrefix(data, sealedMagic)
	switch {
	case !sealed && !s.Enabled():
		return data, nil
	case !sealed:
		return nil, ErrNotSealed
	case !s.Enabled():
		return nil, ErrSealedNoKey
	}
	body := data[len(sealedMagic):]
	n := s.aead.NonceSize()
	if len(body) < n {
		return nil, fmt.Errorf("open: ciphertext too short")
	}
	plain, err := s.aead.Open(nil, body[:n], body[n:], sealedMagic)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plain, nil
}
