// Package notify hands notification events to the external delivery service. Delivery is
// best-effort: a failed send is logged and never fails the request that triggered it.
package notify

import "context"

// Event names understood by the notification service.
const (
	EventVerifyAccount = "verify-account"
	EventResetPassword = "reset-password"
	EventNewAccount    = "new-account"
)

// Event is one notification. Payload is serialized as JSON.
type Event struct {
	Name    string
	Key     string
	Payload any
}

// Sink delivers events. Implementations may block briefly; use EmitAsync from request paths.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// OTPMail is the payload of verify-account and reset-password events.
type OTPMail struct {
	OTP       string `json:"otp"`
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	FullName  string `json:"fullName,omitempty"`
}

// WelcomeMail is the payload of new-account events.
type WelcomeMail struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
}
