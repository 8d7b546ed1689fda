package notify

import (
	"context"
	"log"
	"time"
)

// sendTimeout bounds a single async send. It is also how long shutdown waits for in-flight sends.
const sendTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after GracefulStop before closing sinks.
const ShutdownDrainDuration = sendTimeout

// EmitAsync sends ev from a new goroutine and returns immediately. The send runs on a
// detached context so request cancellation does not abort it; errors are logged.
// A nil sink is a no-op.
func EmitAsync(ctx context.Context, sink Sink, ev Event) {
	if sink == nil || ev.Name == "" {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := sink.Send(sendCtx, ev); err != nil {
			log.Printf("notify: async send %s failed: %v", ev.Name, err)
		}
	}()
}
