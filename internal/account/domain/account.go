package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by updates that match no account.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when an email or phone number is already taken.
	ErrDuplicate = errors.New("account already exists")
	// ErrEmptyFilter is returned when a lookup has no predicate.
	ErrEmptyFilter = errors.New("account filter is empty")
)

// Account is a user account as stored by the directory. PasswordHash is only populated
// when FieldPasswordHash was selected.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PhoneNumber  string     `json:"phoneNumber,omitempty"`
	FullName     string     `json:"fullName,omitempty"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	IsVerified   bool       `json:"isVerified"`
	WillDeleteAt *time.Time `json:"willDeleteAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Active reports whether the account may log in.
func (a *Account) Active() bool {
	return a != nil && a.IsVerified && a.WillDeleteAt == nil
}

// Filter matches accounts by equality on every non-empty field.
type Filter struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Empty reports whether the filter has no predicate.
func (f Filter) Empty() bool {
	return f.ID == "" && f.Email == "" && f.PhoneNumber == ""
}

// Field names a column that is hidden unless explicitly selected.
type Field string

const FieldPasswordHash Field = "passwordHash"

// HasField reports whether want is among fields.
func HasField(fields []Field, want Field) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}

// Patch lists replacements for an account. Nil fields are left alone.
type Patch struct {
	PasswordHash *string    `json:"passwordHash,omitempty"`
	IsVerified   *bool      `json:"isVerified,omitempty"`
	FullName     *string    `json:"fullName,omitempty"`
	PhoneNumber  *string    `json:"phoneNumber,omitempty"`
	AvatarURL    *string    `json:"avatarUrl,omitempty"`
	WillDeleteAt *time.Time `json:"willDeleteAt,omitempty"`
	// Restore clears WillDeleteAt.
	Restore bool `json:"restore,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.PasswordHash == nil && p.IsVerified == nil && p.FullName == nil &&
		p.PhoneNumber == nil && p.AvatarURL == nil && p.WillDeleteAt == nil && !p.Restore
}

// Apply returns a copy of a with p applied.
func (p Patch) Apply(a Account) Account {
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.IsVerified != nil {
		a.IsVerified = *p.IsVerified
	}
	if p.FullName != nil {
		a.FullName = *p.FullName
	}
	if p.PhoneNumber != nil {
		a.PhoneNumber = *p.PhoneNumber
	}
	if p.AvatarURL != nil {
		a.AvatarURL = *p.AvatarURL
	}
	if p.WillDeleteAt != nil {
		t := *p.WillDeleteAt
		a.WillDeleteAt = &t
	}
	if p.Restore {
		a.WillDeleteAt = nil
	}
	return a
}
