// Package verification runs short-lived OTP challenges for account verification and
// password recovery. A challenge is bound to the requesting IP, expires after a fixed TTL,
// and can be completed once.
package verification

import (
	"context"
	"errors"
	"time"
)

// Purpose separates challenge namespaces; a challenge never completes under another purpose.
type Purpose string

const (
	PurposeVerifyAccount Purpose = "verify-account"
	PurposeResetPassword Purpose = "reset-password"
)

// DefaultTTL is how long a challenge stays completable.
const DefaultTTL = 15 * time.Minute

// MaxAttempts is how many wrong codes a challenge absorbs; the last one discards it.
const MaxAttempts = 5

var (
	// ErrChallengeNotFound is returned when no live challenge exists for the session id,
	// including when another request completed it first.
	ErrChallengeNotFound = errors.New("verification challenge not found")
	// ErrIPMismatch is returned when the completing IP differs from the requesting IP.
	ErrIPMismatch = errors.New("verification challenge bound to another ip")
	// ErrOTPIncorrect is returned when the submitted code does not match.
	ErrOTPIncorrect = errors.New("verification code incorrect")
	// ErrTooManyAttempts is returned by the wrong code that exhausts MaxAttempts. The
	// challenge is gone afterwards.
	ErrTooManyAttempts = errors.New("verification attempts exhausted")
	// ErrUnknownPurpose is returned for purposes other than the declared constants.
	ErrUnknownPurpose = errors.New("unknown verification purpose")
)

// Challenge is the cached state of one OTP flow. OTPHash holds the hashed code.
type Challenge struct {
	OTPHash      string `json:"otp"`
	AccountID    string `json:"accountId"`
	IP           string `json:"ip"`
	Registration bool   `json:"registration,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

// Store caches challenges under string keys with a TTL.
type Store interface {
	Save(ctx context.Context, key string, c Challenge, ttl time.Duration) error
	// Load returns the challenge, or nil if it is absent or expired.
	Load(ctx context.Context, key string) (*Challenge, error)
	// Update overwrites a live challenge and keeps its remaining TTL. It reports false
	// when the key is absent or expired.
	Update(ctx context.Context, key string, c Challenge) (bool, error)
	// Delete removes key and reports whether this call removed it. For concurrent callers
	// at most one observes true.
	Delete(ctx context.Context, key string) (bool, error)
}

// Key returns the cache key for a challenge.
func Key(p Purpose, sessionID string) string {
	return "otp:" + string(p) + ":" + sessionID
}

func (p Purpose) valid() bool {
	return p == PurposeVerifyAccount || p == PurposeResetPassword
}
