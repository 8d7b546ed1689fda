package audit

import (
	"context"
	"log"
	"sync"
	"time"
)

// emitTimeout bounds one async emit.
const emitTimeout = 5 * time.Second

// Event is one audited request. AccountID is empty for calls made without an authenticated
// account (register, login, password recovery).
type Event struct {
	AccountID  string
	Action     string
	Resource   string
	IP         string
	Code       string
	DurationMs int64
	Time       time.Time
}

// Emitter writes audit events somewhere durable. Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// Logger builds events for explicit auth actions and hands them to an Emitter.
type Logger struct {
	emitter     Emitter
	ipExtractor IPExtractor
}

// NewLogger returns a Logger. emitter may be nil, in which case LogEvent does nothing.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(emitter Emitter, ipExtractor IPExtractor) *Logger {
	return &Logger{emitter: emitter, ipExtractor: ipExtractor}
}

// LogEvent emits one event asynchronously.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource, code string) {
	if l == nil || l.emitter == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	EmitAsync(ctx, l.emitter, Event{
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Code:      code,
		Time:      time.Now().UTC(),
	})
}

// EmitAsync runs Emit in a goroutine with a short timeout so the RPC is not blocked.
// The goroutine is detached from ctx cancellation. A nil emitter is a no-op.
func EmitAsync(ctx context.Context, emitter Emitter, ev Event) {
	if emitter == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, ev); err != nil {
			log.Printf("audit: emit %s/%s failed: %v", ev.Resource, ev.Action, err)
		}
	}()
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
