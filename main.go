package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/paramstore"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/hub"
	"github.com/hebes/smscrm/internal/logging"
	"github.com/hebes/smscrm/internal/repository"
	"github.com/hebes/smscrm/internal/service"
	server "github.com/hebes/smscrm/internal/transport/http"
	"github.com/hebes/smscrm/internal/transport/ws"
	"github.com/hebes/smscrm/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Str("public_url", cfg.PublicURL).
		Bool("resolve_coalesce", cfg.ResolveCoalesce).
		Msg("starting smscrm")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	// Secrets referenced as ssm:<name>
	var secrets paramstore.Getter
	if cfg.SSMEnabled {
		client, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize parameter store")
		}
		secrets = client
	}

	// Initialize policy engine
	policyContent := policy.DefaultPolicy
	if cfg.PolicyFile != "" {
		data, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PolicyFile).Msg("failed to read policy file")
		}
		policyContent = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Event hub
	eventHub := hub.NewHub()
	go eventHub.Run(ctx)

	// Initialize service
	svc := service.New(db, service.NewProviderFactory(cfg), secrets, eventHub, cfg, policyEngine)

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SeedFile).Msg("failed to load seed file")
		}
		if err := svc.ApplySeed(ctx, seed); err != nil {
			log.Fatal().Err(err).Msg("failed to apply seed")
		}
	}

	go svc.RunStatusReconciler(ctx)

	e := server.NewServer(svc, cfg, ws.NewServer(cfg, eventHub))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("API started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down smscrm")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	stop()

	log.Info().Msg("smscrm stopped")
}
