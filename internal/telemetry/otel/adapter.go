package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"tg-gateway/backend/internal/dispatch"
)

const loggerName = "tg-gateway/dispatch"

var timeNow = func() time.Time { return time.Now().UTC() }

// Recorder is the part of an OTel logger the emitter uses.
type Recorder interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewCallbackEmitter returns a dispatch.Emitter that records each callback outcome as an OTel log record.
// A nil provider yields a no-op emitter.
func NewCallbackEmitter(provider *sdklog.LoggerProvider) dispatch.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &callbackEmitter{logger: provider.Logger(loggerName)}
}

// NewCallbackEmitterWithLogger is NewCallbackEmitter over an explicit recorder.
func NewCallbackEmitterWithLogger(logger Recorder) dispatch.Emitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &callbackEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, dispatch.Outcome) {}

type callbackEmitter struct {
	logger Recorder
}

// Emit builds one record per delivery. The callback URL is left out; it may embed credentials.
func (e *callbackEmitter) Emit(ctx context.Context, o dispatch.Outcome) {
	rec := otellog.Record{}
	rec.SetTimestamp(timeNow())
	if o.Delivered {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetBody(otellog.StringValue("callback delivered"))
	} else {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetBody(otellog.StringValue("callback dropped"))
	}
	rec.AddAttributes(
		otellog.String("tenant_id", o.TenantID),
		otellog.Bool("delivered", o.Delivered),
		otellog.Int("attempts", o.Attempts),
	)
	if o.Status != 0 {
		rec.AddAttributes(otellog.Int("http.status_code", o.Status))
	}
	if o.Err != nil {
		rec.AddAttributes(otellog.String("error", o.Err.Error()))
	}
	e.logger.Emit(ctx, rec)
}
