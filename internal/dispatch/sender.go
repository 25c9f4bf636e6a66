// Package dispatch delivers inbound Telegram messages to tenant callback URLs. The Supervisor keeps one
// listening connection per authorized tenant; the Sender signs each payload and POSTs it with retries.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tg-gateway/backend/internal/security"
)

// Outcome is the final result of one callback delivery.
type Outcome struct {
	TenantID  string
	URL       string
	Delivered bool
	Attempts  int
	// Status is the last HTTP status received; zero when no response arrived.
	Status int
	Err    error
}

// Emitter publishes delivery outcomes. Implementations must not block.
type Emitter interface {
	Emit(ctx context.Context, o Outcome)
}

// SenderConfig bounds delivery.
type SenderConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

// Sender POSTs signed payloads to callback URLs.
type Sender struct {
	client  *http.Client
	signer  *security.Signer
	cfg     SenderConfig
	metrics *Metrics
	emitter Emitter
	clk     clock.Clock
	log     zerolog.Logger

	// wait maps each scheduled backoff to the delay actually slept.
	wait func(time.Duration) time.Duration
}

// NewSender returns a Sender. metrics and emitter may be nil.
func NewSender(cfg SenderConfig, signer *security.Signer, metrics *Metrics, emitter Emitter, clk clock.Clock, log zerolog.Logger) *Sender {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Sender{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		signer:  signer,
		cfg:     cfg,
		metrics: metrics,
		emitter: emitter,
		clk:     clk,
		log:     log.With().Str("component", "dispatch_sender").Logger(),
	}
}

// rejectedError is a 4xx response; it ends the retry loop.
type rejectedError struct{ status int }

func (e *rejectedError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

// Post delivers payload, retrying 5xx responses and transport errors with exponential backoff.
// It reports whether any attempt was acknowledged with a 2xx.
func (s *Sender) Post(ctx context.Context, url string, payload Payload, tenantID string) bool {
	body, err := payload.Encode()
	if err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("encode callback payload")
		return false
	}

	o := Outcome{TenantID: tenantID, URL: url}
	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		o.Attempts++
		status, err := s.send(ctx, url, body)
		o.Status = status
		switch {
		case err != nil:
			s.metrics.attempt(ctx, "error")
			s.log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("host", callbackHost(url)).
				Int("attempt", o.Attempts).
				Int("max_attempts", s.cfg.MaxAttempts).
				Msg("callback attempt failed")
			return retry.RetryableError(err)
		case status >= 200 && status < 300:
			s.metrics.attempt(ctx, "ok")
			return nil
		case status < 500:
			s.metrics.attempt(ctx, "rejected")
			return &rejectedError{status: status}
		default:
			s.metrics.attempt(ctx, "server_error")
			return retry.RetryableError(fmt.Errorf("HTTP %d", status))
		}
	})

	o.Err = err
	o.Delivered = err == nil
	var rejected *rejectedError
	switch {
	case err == nil:
		s.metrics.deliver(ctx)
	case errors.As(err, &rejected):
		s.metrics.drop(ctx, "rejected")
		s.log.Warn().
			Str("tenant_id", tenantID).
			Str("host", callbackHost(url)).
			Int("status", rejected.status).
			Msg("callback non-retryable failure")
	default:
		s.metrics.drop(ctx, "exhausted")
		s.log.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("host", callbackHost(url)).
			Int("attempts", o.Attempts).
			Msg("callback dropped")
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, o)
	}
	return o.Delivered
}

// SendTest makes a single unretried attempt with the test payload. On failure the message is
// "HTTP <status>" or the transport error.
func (s *Sender) SendTest(ctx context.Context, url, tenantID string) (bool, string) {
	body, err := TestPayload(tenantID, s.clk.Now()).Encode()
	if err != nil {
		return false, err.Error()
	}
	status, err := s.send(ctx, url, body)
	if err != nil {
		return false, err.Error()
	}
	if status < 200 || status >= 300 {
		return false, fmt.Sprintf("HTTP %d", status)
	}
	return true, ""
}

func (s *Sender) backoff() retry.Backoff {
	b := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.InitialBackoff))
	if s.wait == nil {
		return b
	}
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if stop {
			return 0, true
		}
		return s.wait(d), false
	})
}

func (s *Sender) send(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sig := s.signer.Sign(body); sig != "" {
		req.Header.Set(security.SignatureHeader, sig)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, withoutURL(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// callbackHost is the only part of a callback URL that reaches logs; paths and queries may carry credentials.
func callbackHost(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// withoutURL drops the request URL that net/http puts in transport errors.
func withoutURL(err error) error {
	var ue *neturl.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
