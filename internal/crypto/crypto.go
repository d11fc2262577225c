// Package crypto implements the file encryption capability: AES-256-GCM with a
// random 96-bit nonce prepended to the ciphertext, random or password-derived
// keys, and URL-safe key tokens for share links.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyBytes   = 32
	SaltBytes  = 16
	NonceBytes = 12

	// PBKDF2-SHA256 work factor for password-protected shares.
	KDFIterations = 100_000
)

// Overhead is the number of bytes Encrypt adds to the plaintext.
const Overhead = NonceBytes + 16

var (
	// ErrIntegrity is returned when authenticated decryption fails: the key
	// (or password) is wrong, or the ciphertext was corrupted or tampered with.
	ErrIntegrity = errors.New("wrong password or corrupted data")

	ErrKeySize = errors.New("invalid key size")
)

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// NewSalt returns a fresh random salt for DeriveKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a password into a 256-bit key.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, KDFIterations, KeyBytes, sha256.New)
}

// Encrypt seals plaintext under key. Output layout: nonce(12) || ciphertext+tag.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceBytes, NonceBytes+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceBytes], plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Any authentication failure is
// reported as ErrIntegrity.
func Decrypt(data, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(data) < NonceBytes+aead.Overhead() {
		return nil, ErrIntegrity
	}

	pt, err := aead.Open(nil, data[:NonceBytes], data[NonceBytes:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrKeySize, len(key), KeyBytes)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
