package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealVersion = "buddy-token-v1"
	saltSize    = 16
	keySize     = chacha20poly1305.KeySize
	nonceSize   = chacha20poly1305.NonceSize
	tagSize     = chacha20poly1305.Overhead
	minSealed   = saltSize + nonceSize + tagSize // 44
)

var (
	ErrEmptySecret = errors.New("sealing secret must not be empty")
	ErrUnseal      = errors.New("unseal failed: wrong secret or tampered data")
)

// deriveKey derives a per-blob encryption key from the configured secret using HKDF-SHA256.
func deriveKey(secret, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(sealVersion))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext with a key derived from secret.
// Wire format (base64): salt[16] + nonce[12] + ciphertext[N+16].
func Seal(plaintext, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key, err := deriveKey([]byte(secret), salt)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), salt)

	wire := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	wire = append(wire, salt...)
	wire = append(wire, nonce...)
	wire = append(wire, ciphertext...)
	return base64.StdEncoding.EncodeToString(wire), nil
}

// Unseal reverses Seal.
func Unseal(sealed, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	wire, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrUnseal)
	}
	if len(wire) < minSealed {
		return "", fmt.Errorf("%w: %d bytes, minimum %d", ErrUnseal, len(wire), minSealed)
	}

	salt := wire[:saltSize]
	nonce := wire[saltSize : saltSize+nonceSize]
	ciphertext := wire[saltSize+nonceSize:]

	key, err := deriveKey([]byte(secret), salt)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return "", ErrUnseal
	}
	return string(plaintext), nil
}
