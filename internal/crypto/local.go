package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errCiphertextTooShort = errors.New("ciphertext too short")

// LocalEncryptor implements Encryptor with NaCl secretbox and a key derived
// from the session secret. Used in DEV_MODE and when no KMS key is configured.
type LocalEncryptor struct {
	key [32]byte
}

// NewLocalEncryptor derives a secretbox key from secret with HKDF-SHA256.
func NewLocalEncryptor(secret string) (*LocalEncryptor, error) {
	if secret == "" {
		return nil, errors.New("local encryptor: empty secret")
	}
	e := &LocalEncryptor{}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("driveuploader session token"))
	if _, err := io.ReadFull(r, e.key[:]); err != nil {
		return nil, fmt.Errorf("local encryptor: derive key: %w", err)
	}
	return e, nil
}

func (e *LocalEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &e.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *LocalEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(decoded) < nonceSize+secretbox.Overhead {
		return "", errCiphertextTooShort
	}

	var nonce [nonceSize]byte
	copy(nonce[:], decoded[:nonceSize])
	plain, ok := secretbox.Open(nil, decoded[nonceSize:], &nonce, &e.key)
	if !ok {
		return "", errors.New("failed to decrypt data: authentication failed")
	}
	return string(plain), nil
}
