package domain

import (
	"errors"
	"time"
)

// DefaultTTL is the lifetime of a session from creation or its latest rotation.
const DefaultTTL = 14 * 24 * time.Hour

// ErrSessionInactive is returned when no active session matches a jit and account pair:
// the row is absent, revoked, expired, or was rotated by a concurrent request.
var ErrSessionInactive = errors.New("session inactive")

// ErrEmptyPatch is returned when Update is called with nothing to change.
var ErrEmptyPatch = errors.New("session patch is empty")

// UserAgent describes the client that opened or last rotated the session.
type UserAgent struct {
	Raw     string `json:"raw,omitempty"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`
}

// Session is one device's login. It is bound to exactly one live token through Jit;
// rotation replaces Jit in place. A nil ExpiresAt means the session was revoked.
type Session struct {
	ID        string
	Jit       string
	AccountID string
	UserAgent UserAgent
	IP        string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// Filter selects the session a token refers to.
type Filter struct {
	Jit       string
	AccountID string
}

// Patch lists the fields to replace on an active session. Revoke clears ExpiresAt and
// takes precedence over ExpiresAt.
type Patch struct {
	Jit       string
	ExpiresAt *time.Time
	Revoke    bool
	IP        *string
	UserAgent *UserAgent
}

// RevokePatch returns the patch that ends a session.
func RevokePatch() Patch { return Patch{Revoke: true} }

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Jit == "" && p.ExpiresAt == nil && !p.Revoke && p.IP == nil && p.UserAgent == nil
}

// Apply returns a copy of s with p applied.
func (p Patch) Apply(s Session) Session {
	if p.Jit != "" {
		s.Jit = p.Jit
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		s.ExpiresAt = &t
	}
	if p.Revoke {
		s.ExpiresAt = nil
	}
	if p.IP != nil {
		s.IP = *p.IP
	}
	if p.UserAgent != nil {
		s.UserAgent = *p.UserAgent
	}
	return s
}
