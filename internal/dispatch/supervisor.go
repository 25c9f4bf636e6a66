package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/async"
	sessiondomain "tg-gateway/backend/internal/session/domain"
	"tg-gateway/backend/internal/telegram"
)

// SessionSource reads stored sessions. Satisfied by *session.Store.
type SessionSource interface {
	Get(ctx context.Context, tenantID string) (*sessiondomain.AuthRecord, error)
	Session(rec *sessiondomain.AuthRecord) ([]byte, error)
	ListDispatchTargets(ctx context.Context) ([]sessiondomain.DispatchTarget, error)
}

// InboundRecorder keeps a best-effort record of delivered inbound messages.
type InboundRecorder interface {
	RecordInbound(ctx context.Context, tenantID string, msg telegram.IncomingMessage)
}

// Poster delivers one payload. Satisfied by *Sender.
type Poster interface {
	Post(ctx context.Context, url string, payload Payload, tenantID string) bool
}

// Supervisor owns one listening connection per tenant. The running table is guarded by a single
// mutex so concurrent Start and Stop for a tenant cannot double-connect or double-remove.
type Supervisor struct {
	sessions SessionSource
	dialer   telegram.Dialer
	poster   Poster
	inbound  InboundRecorder
	metrics  *Metrics
	tasks    *async.Group
	log      zerolog.Logger

	mu      sync.Mutex
	running map[string]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	conn   telegram.Conn
}

// NewSupervisor returns an idle Supervisor. inbound and metrics may be nil.
func NewSupervisor(sessions SessionSource, dialer telegram.Dialer, poster Poster, inbound InboundRecorder, metrics *Metrics, log zerolog.Logger) *Supervisor {
	log = log.With().Str("component", "dispatch").Logger()
	return &Supervisor{
		sessions: sessions,
		dialer:   dialer,
		poster:   poster,
		inbound:  inbound,
		metrics:  metrics,
		tasks:    async.NewGroup(log),
		log:      log,
		running:  make(map[string]*run),
	}
}

// Start connects the tenant and forwards its incoming messages to callbackURL. No-op when already running.
// The loop outlives ctx; only Stop or a disconnect ends it.
func (s *Supervisor) Start(_ context.Context, tenantID, callbackURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[tenantID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.running[tenantID] = r
	go s.loop(ctx, r, tenantID, callbackURL)
}

// Stop disconnects the tenant and waits for its loop to exit, or for ctx to end. No-op when not running.
func (s *Supervisor) Stop(ctx context.Context, tenantID string) {
	if err := s.stop(ctx, tenantID); err != nil {
		s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("dispatcher did not stop in time")
	}
}

func (s *Supervisor) stop(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	r, ok := s.running[tenantID]
	var conn telegram.Conn
	if ok {
		conn = r.conn
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	r.cancel()
	if conn != nil {
		_ = conn.Close()
	}

	var err error
	select {
	case <-r.done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	if s.running[tenantID] == r {
		delete(s.running, tenantID)
	}
	s.mu.Unlock()
	return err
}

// StartAll starts every authorized tenant that has a callback URL.
func (s *Supervisor) StartAll(ctx context.Context) error {
	targets, err := s.sessions.ListDispatchTargets(ctx)
	if err != nil {
		return err
	}
	for _, t := range targets {
		s.Start(ctx, t.TenantID, t.CallbackURL)
	}
	s.log.Info().Int("tenants", len(targets)).Msg("dispatchers started")
	return nil
}

// StopAll stops every running tenant, then waits for in-flight deliveries.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var result *multierror.Error
	for _, id := range s.Running() {
		if err := s.stop(ctx, id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.tasks.Wait(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Running returns the ids of tenants with a live loop, sorted.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsRunning reports whether the tenant has a live loop.
func (s *Supervisor) IsRunning(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[tenantID]
	return ok
}

func (s *Supervisor) loop(ctx context.Context, r *run, tenantID, callbackURL string) {
	log := s.log.With().Str("tenant_id", tenantID).Logger()
	defer func() {
		s.mu.Lock()
		conn := r.conn
		if s.running[tenantID] == r {
			delete(s.running, tenantID)
		}
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		close(r.done)
	}()

	rec, err := s.sessions.Get(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Msg("dispatcher could not load session")
		return
	}
	if !rec.HasSession() {
		log.Warn().Msg("dispatcher not authorized, skipping")
		return
	}
	plain, err := s.sessions.Session(rec)
	if err != nil {
		log.Error().Err(err).Msg("dispatcher could not open session")
		return
	}
	conn, err := s.dialer.Dial(ctx, plain)
	if err != nil {
		log.Error().Err(err).Msg("dispatcher connect failed")
		return
	}
	s.mu.Lock()
	r.conn = conn
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	ok, err := conn.Authorized(ctx)
	if err != nil || !ok {
		log.Warn().Err(err).Msg("dispatcher not authorized, skipping")
		return
	}

	s.metrics.connections(ctx, 1)
	defer s.metrics.connections(context.Background(), -1)
	log.Info().Msg("dispatcher listening")
	err = conn.Listen(ctx, func(msg telegram.IncomingMessage) {
		s.dispatch(tenantID, callbackURL, msg)
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("dispatcher disconnected")
		return
	}
	log.Info().Msg("dispatcher stopped")
}

// dispatch hands each event to its own task; deliveries for one tenant may complete out of order.
func (s *Supervisor) dispatch(tenantID, callbackURL string, msg telegram.IncomingMessage) {
	payload := NewPayload(tenantID, msg)
	s.tasks.Go(context.Background(), "callback", func(ctx context.Context) {
		s.poster.Post(ctx, callbackURL, payload, tenantID)
	})
	if s.inbound != nil {
		s.tasks.Go(context.Background(), "inbound_audit", func(ctx context.Context) {
			s.inbound.RecordInbound(ctx, tenantID, msg)
		})
	}
}
