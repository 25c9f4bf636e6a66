// server runs the gateway HTTP API and the per-tenant dispatch loops.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/audit"
	authhandler "tg-gateway/backend/internal/auth/handler"
	authservice "tg-gateway/backend/internal/auth/service"
	"tg-gateway/backend/internal/config"
	"tg-gateway/backend/internal/db"
	"tg-gateway/backend/internal/devcallback"
	devcallbackhandler "tg-gateway/backend/internal/devcallback/handler"
	"tg-gateway/backend/internal/dispatch"
	healthhandler "tg-gateway/backend/internal/health/handler"
	"tg-gateway/backend/internal/logging"
	messagehandler "tg-gateway/backend/internal/message/handler"
	messagerepo "tg-gateway/backend/internal/message/repository"
	messageservice "tg-gateway/backend/internal/message/service"
	"tg-gateway/backend/internal/peer"
	"tg-gateway/backend/internal/ratelimit"
	"tg-gateway/backend/internal/security"
	"tg-gateway/backend/internal/server"
	"tg-gateway/backend/internal/session"
	sessionrepo "tg-gateway/backend/internal/session/repository"
	"tg-gateway/backend/internal/telegram/gotd"
	otelsetup "tg-gateway/backend/internal/telemetry/otel"
	tenanthandler "tg-gateway/backend/internal/tenant/handler"
	tenantrepo "tg-gateway/backend/internal/tenant/repository"
	tenantservice "tg-gateway/backend/internal/tenant/service"
)

// stageTimeout bounds each shutdown stage.
const stageTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()

	if !cfg.TelegramConfigured() {
		logger.Warn().Msg("TELEGRAM_API_ID / TELEGRAM_API_HASH not set; sign-in and dispatch will fail")
	}

	clk := clock.New()
	sessions := session.NewStore(sessionrepo.NewPostgresRepository(conn), security.NewSessionCipher(cfg.SessionEncKey), clk, logger)
	resolver, err := peer.NewResolver(cfg.PeerCacheSize, logger)
	if err != nil {
		return err
	}
	dialer := gotd.NewDialer(cfg.TelegramAPIID, cfg.TelegramAPIHash, logger)

	metrics, err := dispatch.NewMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("dispatch metrics: %w", err)
	}
	sender := dispatch.NewSender(dispatch.SenderConfig{
		MaxAttempts:    cfg.CallbackMaxAttempts,
		InitialBackoff: cfg.CallbackInitialBackoff,
		Timeout:        cfg.CallbackTimeout,
	}, security.NewSigner(cfg.CallbackSigningSecret), metrics, otelsetup.NewCallbackEmitter(providers.LoggerProvider), clk, logger)
	auditLog := audit.NewLogger(messagerepo.NewPostgresRepository(conn), clk, logger)
	supervisor := dispatch.NewSupervisor(sessions, dialer, sender, auditLog, metrics, logger)

	tenants := tenantservice.NewService(tenantrepo.NewPostgresRepository(conn), sessions, supervisor, sender, clk, logger)
	auth := authservice.NewService(tenants, sessions, dialer, supervisor, resolver, clk, cfg.AuthUXDelay, logger)
	messages := messageservice.NewService(tenants, ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow, clk), sessions, dialer, resolver, auditLog, logger)

	handlers := []server.Registrar{
		healthhandler.NewHandler(conn, logger),
		tenanthandler.NewHandler(tenants, logger),
		authhandler.NewHandler(auth, logger),
		messagehandler.NewHandler(messages, logger),
	}
	if cfg.DevCallbackReceiver() {
		logger.Warn().Msg("dev callback receiver enabled at /dev/callback-receiver")
		handlers = append(handlers, devcallbackhandler.NewHandler(devcallback.NewMemoryStore(clk), logger))
	}
	srv := server.NewServer(cfg.HTTPAddr, server.NewRouter(logger, server.Options{AllowedOrigins: cfg.CORSOrigins()}, handlers...))

	if err := supervisor.StartAll(ctx); err != nil {
		logger.Error().Err(err).Msg("could not start dispatch for ready tenants")
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err, ok := <-serveErr:
		if ok {
			result = multierror.Append(result, fmt.Errorf("serve: %w", err))
		}
	}

	if err := stage(supervisor.StopAll); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop dispatch: %w", err))
	}
	if err := stage(srv.Shutdown); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if err := stage(providers.Shutdown); err != nil {
		result = multierror.Append(result, fmt.Errorf("telemetry shutdown: %w", err))
	}
	logger.Info().Msg("server stopped")
	return result.ErrorOrNil()
}

// stage runs fn under a fresh stageTimeout context.
func stage(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()
	return fn(ctx)
}
