package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// PasswordPrefix marks a key token that carries a salt instead of a key.
const PasswordPrefix = "p_"

var ErrBadToken = errors.New("invalid key token")

var b64 = base64.RawURLEncoding

var keyTokenLen = b64.EncodedLen(KeyBytes)

// Token is the decoded form of the key material in a share link fragment.
// Exactly one of Key and Salt is set.
type Token struct {
	Key  []byte
	Salt []byte
}

// Protected reports whether a password is needed to obtain the key.
func (t Token) Protected() bool { return t.Salt != nil }

// ExportKey encodes a raw key as a URL-safe token.
func ExportKey(key []byte) string {
	return b64.EncodeToString(key)
}

// PasswordToken encodes a salt as a password-protected token.
func PasswordToken(salt []byte) string {
	return PasswordPrefix + b64.EncodeToString(salt)
}

// ParseToken decodes a token produced by ExportKey or PasswordToken.
// Trailing '=' padding is tolerated.
func ParseToken(s string) (Token, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return Token{}, fmt.Errorf("%w: empty", ErrBadToken)
	}

	// A raw key token can itself begin with "p_"; those are 43 characters
	// long and never decode as a salt, so they fall through to the key path.
	if rest, ok := strings.CutPrefix(s, PasswordPrefix); ok && len(s) != keyTokenLen {
		salt, err := b64.DecodeString(rest)
		if err != nil || len(salt) == 0 {
			return Token{}, fmt.Errorf("%w: bad salt encoding", ErrBadToken)
		}
		return Token{Salt: salt}, nil
	}

	key, err := b64.DecodeString(s)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad key encoding", ErrBadToken)
	}
	if len(key) != KeyBytes {
		return Token{}, fmt.Errorf("%w: key is %d bytes, want %d", ErrBadToken, len(key), KeyBytes)
	}
	return Token{Key: key}, nil
}

// Resolve returns the key for the token, deriving it from password when the
// token is password-protected.
func (t Token) Resolve(password string) ([]byte, error) {
	if !t.Protected() {
		return t.Key, nil
	}
	if password == "" {
		return nil, errors.New("password required")
	}
	return DeriveKey(password, t.Salt), nil
}
