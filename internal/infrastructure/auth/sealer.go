package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/marketsync/backend/internal/domain/integration"
)

const nonceSize = 24

// ErrSealedValueInvalid is returned when a sealed value fails authentication
var ErrSealedValueInvalid = errors.New("auth: sealed value is invalid")

// SecretboxSealer seals values with NaCl secretbox (XSalsa20-Poly1305).
// The sealed form is nonce || box.
type SecretboxSealer struct {
	key [32]byte
}

// NewSecretboxSealer creates a sealer from a key. A base64 key of 32 bytes is
// used directly; any other string is stretched with SHA-256.
func NewSecretboxSealer(key string) (*SecretboxSealer, error) {
	if key == "" {
		return nil, errors.New("auth: encryption key is empty")
	}
	s := &SecretboxSealer{}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		copy(s.key[:], raw)
		return s, nil
	}
	s.key = sha256.Sum256([]byte(key))
	return s, nil
}

// Seal encrypts plaintext under a fresh random nonce
func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("auth: read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal
func (s *SecretboxSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedValueInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealedValueInvalid
	}
	return plaintext, nil
}

// NewValueSealer returns a secretbox sealer when key is set, otherwise a plain sealer
func NewValueSealer(key string) (integration.ValueSealer, error) {
	if key == "" {
		return integration.PlainSealer{}, nil
	}
	return NewSecretboxSealer(key)
}

// Ensure SecretboxSealer implements ValueSealer
var _ integration.ValueSealer = (*SecretboxSealer)(nil)
