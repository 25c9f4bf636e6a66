// seed inserts a development tenant whose callback URL points at the dev loopback receiver.
// Idempotent: skips the insert if the dev tenant already exists.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"tg-gateway/backend/internal/config"
	"tg-gateway/backend/internal/db"
	"tg-gateway/backend/internal/logging"
	"tg-gateway/backend/internal/tenant/domain"
	"tg-gateway/backend/internal/tenant/repository"
)

const (
	devTenantID   = "00000000-0000-4000-8000-000000000001"
	devTenantName = "Dev Tenant"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8000", "Gateway base URL the dev callback receiver is reachable at")
	noCallback := flag.Bool("no-callback", false, "Create the dev tenant without a callback URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	repo := repository.NewPostgresRepository(conn)

	existing, err := repo.GetByID(ctx, devTenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("seed check")
	}
	if existing != nil {
		log.Info().Str("tenant_id", devTenantID).Msg("seed already applied; skipping")
		return
	}

	t := &domain.Tenant{ID: devTenantID, Name: devTenantName, CreatedAt: time.Now().UTC()}
	if !*noCallback {
		t.CallbackURL = *baseURL + "/dev/callback-receiver"
	}
	if err := t.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid dev tenant")
	}
	if err := repo.Create(ctx, t); err != nil {
		log.Fatal().Err(err).Msg("create dev tenant")
	}

	log.Info().Msg("seed completed successfully")
	fmt.Printf("Dev tenant: %s (callback %q)\n", t.ID, t.CallbackURL)
	if t.CallbackURL != "" && !cfg.DevCallbackReceiver() {
		fmt.Println("Set DEV_CALLBACK_RECEIVER=1 on the server to capture its callbacks.")
	}
}
