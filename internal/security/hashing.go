package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// UnusablePasswordHash marks accounts that were created through an external identity
// provider. No password ever matches it.
const UnusablePasswordHash = "-"

// ErrPasswordMismatch is returned by Compare when the password does not match the hash.
var ErrPasswordMismatch = errors.New("password mismatch")

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost clamped to bcrypt's bounds.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil when password matches hash and ErrPasswordMismatch otherwise,
// including for the unusable sentinel and malformed hashes.
func (h *Hasher) Compare(hash string, password []byte) error {
	if hash == "" || hash == UnusablePasswordHash {
		return ErrPasswordMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), password); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
