package verification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"credential-authority/internal/notify"
	"credential-authority/internal/otp"
)

// Recipient is who the challenge's code is mailed to.
type Recipient struct {
	AccountID string
	Email     string
	FullName  string
}

// Service starts and completes challenges.
type Service struct {
	store    Store
	sink     notify.Sink
	ttl      time.Duration
	generate func() (string, error)
	newID    func() string
}

// NewService returns a Service. sink may be nil when no notification transport is wired.
func NewService(store Store, sink notify.Sink, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    store,
		sink:     sink,
		ttl:      ttl,
		generate: otp.Generate,
		newID:    uuid.NewString,
	}
}

// Start creates a challenge for r bound to ip and mails the code. The code is never returned;
// the caller gets the session id the client must echo back.
func (s *Service) Start(ctx context.Context, p Purpose, r Recipient, ip string, registration bool) (string, error) {
	if !p.valid() {
		return "", ErrUnknownPurpose
	}
	code, err := s.generate()
	if err != nil {
		return "", err
	}
	sessionID := s.newID()
	c := Challenge{
		OTPHash:      otp.Hash(code),
		AccountID:    r.AccountID,
		IP:           ip,
		Registration: registration,
	}
	if err := s.store.Save(ctx, Key(p, sessionID), c, s.ttl); err != nil {
		return "", err
	}
	notify.EmitAsync(ctx, s.sink, notify.Event{
		Name: string(p),
		Key:  r.AccountID,
		Payload: notify.OTPMail{
			OTP:       code,
			SessionID: sessionID,
			Email:     r.Email,
			FullName:  r.FullName,
		},
	})
	return sessionID, nil
}

// Complete checks code and ip against the challenge and consumes it on success. Only the
// request whose delete removed the key succeeds; racing requests get ErrChallengeNotFound.
// A wrong ip leaves the challenge in place. A wrong code counts against MaxAttempts.
func (s *Service) Complete(ctx context.Context, p Purpose, sessionID, code, ip string) (*Challenge, error) {
	if !p.valid() {
		return nil, ErrUnknownPurpose
	}
	key := Key(p, sessionID)
	c, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	if c.IP != ip {
		return nil, ErrIPMismatch
	}
	if !otp.Equal(code, c.OTPHash) {
		return nil, s.recordMiss(ctx, key, *c)
	}
	won, err := s.store.Delete(ctx, key)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// recordMiss counts a wrong code. The miss that reaches MaxAttempts discards the challenge.
func (s *Service) recordMiss(ctx context.Context, key string, c Challenge) error {
	c.Attempts++
	if c.Attempts >= MaxAttempts {
		if _, err := s.store.Delete(ctx, key); err != nil {
			return err
		}
		return ErrTooManyAttempts
	}
	ok, err := s.store.Update(ctx, key, c)
	if err != nil {
		return err
	}
	if !ok {
		return ErrChallengeNotFound
	}
	return ErrOTPIncorrect
}
