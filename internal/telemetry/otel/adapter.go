package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"credential-authority/internal/audit"
)

const auditScope = "credential-authority.audit"

// recordEmitter is the part of otellog.Logger the audit emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitter returns an audit.Emitter that writes events as OTel log records.
// If provider is nil, returns a no-op emitter.
func NewAuditEmitter(provider *sdklog.LoggerProvider) audit.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return newAuditEmitterWithLogger(provider.Logger(auditScope))
}

func newAuditEmitterWithLogger(l recordEmitter) audit.Emitter {
	return &auditEmitter{logger: l}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, audit.Event) error { return nil }

type auditEmitter struct {
	logger recordEmitter
}

// Emit converts ev to a log record. Empty fields are omitted.
func (e *auditEmitter) Emit(ctx context.Context, ev audit.Event) error {
	rec := otellog.Record{}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(ev.Resource + "." + ev.Action))
	if ev.Code != "" && ev.Code != "OK" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	attrs := []otellog.KeyValue{
		otellog.String("action", ev.Action),
		otellog.String("resource", ev.Resource),
	}
	if ev.AccountID != "" {
		attrs = append(attrs, otellog.String("account_id", ev.AccountID))
	}
	if ev.IP != "" {
		attrs = append(attrs, otellog.String("client_ip", ev.IP))
	}
	if ev.Code != "" {
		attrs = append(attrs, otellog.String("status_code", ev.Code))
	}
	if ev.DurationMs > 0 {
		attrs = append(attrs, otellog.Int64("duration_ms", ev.DurationMs))
	}
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}
