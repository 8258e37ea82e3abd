package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSealedKey is returned when a sealed key cannot be opened with this sealer
var ErrSealedKey = errors.New("sealed api key cannot be opened")

// KeySealer encrypts caller API keys before they leave the process inside a
// queued task payload.
type KeySealer struct {
	key [32]byte
}

// NewKeySealer derives the sealing key from secret. An empty secret yields a
// random key that only this process knows.
func NewKeySealer(secret string) (*KeySealer, error) {
	s := &KeySealer{}
	if secret != "" {
		s.key = sha256.Sum256([]byte(secret))
		return s, nil
	}
	if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate sealing key: %w", err)
	}
	return s, nil
}

// Seal returns base64(nonce || box)
func (s *KeySealer) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (s *KeySealer) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedKey
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedKey
	}
	return string(plain), nil
}
