package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"tg-gateway/backend/internal/security"
	"tg-gateway/backend/internal/telegram"
)

type recordingEmitter struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (e *recordingEmitter) Emit(_ context.Context, o Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = append(e.outcomes, o)
}

// statusServer answers with statuses[i] on the i-th request and the last status after that.
func statusServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestSender(secret string, metrics *Metrics, emitter Emitter) (*Sender, *[]time.Duration) {
	s := NewSender(SenderConfig{MaxAttempts: 5, InitialBackoff: time.Second, Timeout: 5 * time.Second},
		security.NewSigner(secret), metrics, emitter, clock.NewMock(), zerolog.Nop())
	var waits []time.Duration
	s.wait = func(d time.Duration) time.Duration {
		waits = append(waits, d)
		return 0
	}
	return s, &waits
}

func samplePayload() Payload {
	return NewPayload("t-1", telegram.IncomingMessage{ChatID: 1, MessageID: 2, SenderID: 3, Text: "hi", Date: time.Unix(1700000000, 0)})
}

func TestPost_SucceedsOnFifthAttempt(t *testing.T) {
	srv, hits := statusServer(t, 500, 500, 500, 500, 200)
	emitter := &recordingEmitter{}
	s, waits := newTestSender("", nil, emitter)

	ok := s.Post(context.Background(), srv.URL, samplePayload(), "t-1")
	assert.True(t, ok)
	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, *waits)
	require.Len(t, emitter.outcomes, 1)
	assert.True(t, emitter.outcomes[0].Delivered)
	assert.Equal(t, 5, emitter.outcomes[0].Attempts)
	assert.Equal(t, 200, emitter.outcomes[0].Status)
}

func TestPost_DropsAfterMaxAttempts(t *testing.T) {
	srv, hits := statusServer(t, 503)
	emitter := &recordingEmitter{}
	s, waits := newTestSender("", nil, emitter)

	ok := s.Post(context.Background(), srv.URL, samplePayload(), "t-1")
	assert.False(t, ok)
	assert.Equal(t, int32(5), hits.Load())
	assert.Len(t, *waits, 4, "no wait after the final attempt")
	require.Len(t, emitter.outcomes, 1)
	assert.False(t, emitter.outcomes[0].Delivered)
	assert.EqualError(t, emitter.outcomes[0].Err, "HTTP 503")
}

func TestPost_ClientErrorIsNotRetried(t *testing.T) {
	srv, hits := statusServer(t, 404)
	s, waits := newTestSender("", nil, nil)

	assert.False(t, s.Post(context.Background(), srv.URL, samplePayload(), "t-1"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, *waits)
}

func TestPost_TransportErrorIsRetried(t *testing.T) {
	srv, _ := statusServer(t, 200)
	url := srv.URL
	srv.Close()
	s, waits := newTestSender("", nil, nil)

	assert.False(t, s.Post(context.Background(), url, samplePayload(), "t-1"))
	assert.Len(t, *waits, 4)
}

func TestPost_LogsHostOnly(t *testing.T) {
	closed, _ := statusServer(t, 200)
	deadURL := closed.URL + "/hooks/s3cret?token=abc"
	closed.Close()
	rejecting, _ := statusServer(t, 404)

	emitter := &recordingEmitter{}
	s, _ := newTestSender("", nil, emitter)
	var buf bytes.Buffer
	s.log = zerolog.New(&buf)

	assert.False(t, s.Post(context.Background(), deadURL, samplePayload(), "t-1"))
	assert.False(t, s.Post(context.Background(), rejecting.URL+"/hooks/s3cret", samplePayload(), "t-1"))
	ok, msg := s.SendTest(context.Background(), deadURL, "t-1")
	assert.False(t, ok)

	logs := buf.String()
	assert.Contains(t, logs, strings.TrimPrefix(closed.URL, "http://"))
	assert.Contains(t, logs, strings.TrimPrefix(rejecting.URL, "http://"))
	assert.NotContains(t, logs, "s3cret")
	assert.NotContains(t, msg, "s3cret")
	require.Len(t, emitter.outcomes, 2)
	require.Error(t, emitter.outcomes[0].Err)
	assert.NotContains(t, emitter.outcomes[0].Err.Error(), "s3cret")
}

func TestPost_CanceledContextStops(t *testing.T) {
	srv, hits := statusServer(t, 500)
	s, _ := newTestSender("", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.wait = func(time.Duration) time.Duration {
		cancel()
		return time.Hour
	}

	assert.False(t, s.Post(ctx, srv.URL, samplePayload(), "t-1"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestPost_SignsExactBody(t *testing.T) {
	signer := security.NewSigner("s3cret")
	var gotBody []byte
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(security.SignatureHeader)
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()
	s, _ := newTestSender("s3cret", nil, nil)

	p := samplePayload()
	require.True(t, s.Post(context.Background(), srv.URL, p, "t-1"))
	want, err := p.Encode()
	require.NoError(t, err)
	assert.Equal(t, want, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.True(t, signer.Verify(gotBody, gotSig))
}

func TestPost_NoSecretOmitsHeader(t *testing.T) {
	var present atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header[security.SignatureHeader]
		present.Store(ok)
	}))
	defer srv.Close()
	s, _ := newTestSender("  ", nil, nil)

	require.True(t, s.Post(context.Background(), srv.URL, samplePayload(), "t-1"))
	assert.False(t, present.Load())
}

func TestSendTest(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv, hits := statusServer(t, 204)
		s, _ := newTestSender("", nil, nil)
		ok, msg := s.SendTest(context.Background(), srv.URL, "t-1")
		assert.True(t, ok)
		assert.Empty(t, msg)
		assert.Equal(t, int32(1), hits.Load())
	})
	t.Run("server error is not retried", func(t *testing.T) {
		srv, hits := statusServer(t, 500)
		s, _ := newTestSender("", nil, nil)
		ok, msg := s.SendTest(context.Background(), srv.URL, "t-1")
		assert.False(t, ok)
		assert.Equal(t, "HTTP 500", msg)
		assert.Equal(t, int32(1), hits.Load())
	})
	t.Run("transport error", func(t *testing.T) {
		s, _ := newTestSender("", nil, nil)
		ok, msg := s.SendTest(context.Background(), "http://127.0.0.1:1/cb", "t-1")
		assert.False(t, ok)
		assert.NotEmpty(t, msg)
	})
}

func TestMetrics_CountOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	okSrv, _ := statusServer(t, 500, 200)
	badSrv, _ := statusServer(t, 400)
	s, _ := newTestSender("", metrics, nil)
	require.True(t, s.Post(context.Background(), okSrv.URL, samplePayload(), "t-1"))
	require.False(t, s.Post(context.Background(), badSrv.URL, samplePayload(), "t-1"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), totals["callback.attempts"])
	assert.Equal(t, int64(1), totals["callback.delivered"])
	assert.Equal(t, int64(1), totals["callback.dropped"])
}

func TestNewMetrics_NilProvider(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.attempt(context.Background(), "ok")
	var nilMetrics *Metrics
	nilMetrics.deliver(context.Background())
}
