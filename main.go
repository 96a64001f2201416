package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akibrhast/synosync/config"
	"github.com/akibrhast/synosync/inventory"
	"github.com/akibrhast/synosync/portainer"
	"github.com/akibrhast/synosync/proxy"
	"github.com/akibrhast/synosync/reconciler"
	"github.com/akibrhast/synosync/server"
	"github.com/akibrhast/synosync/synology"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LogLevel)

	log.Info().Msg("Starting synosync")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("portainer", cfg.Portainer.URL()).
		Str("synology", cfg.Synology.URL()).
		Str("domain_suffix", cfg.Rules.DomainSuffix).
		Str("backend_host", cfg.Rules.BackendHost).
		Str("listen", cfg.Server.Addr()).
		Msg("Configuration loaded")

	classifier := inventory.DefaultClassifier()
	classifier.Extend(cfg.Rules.DenylistKeywords(), cfg.Rules.WebsocketKeywords())

	source := portainer.NewClient(cfg.Portainer.URL(), cfg.Portainer.Username, cfg.Portainer.Password, cfg.Portainer.Insecure)
	store := synology.NewClient(cfg.Synology.URL(), cfg.Synology.Username, cfg.Synology.Password, cfg.Synology.Insecure)

	inv := inventory.New(source, classifier)
	rules := proxy.NewManager(store)
	rec := reconciler.New(inv, rules, cfg.Rules.DomainSuffix, cfg.Rules.BackendHost)

	// Initial scan is best-effort; the API exposes a rescan operation.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := inv.Scan(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Initial inventory scan failed, starting with an empty snapshot")
	}
	startupCancel()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.New(inv, rules, rec, cfg.Rules.DomainSuffix).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal, initiating graceful shutdown")
		cancel()
	}()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down API server cleanly")
	}

	log.Info().Msg("synosync stopped gracefully")
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
