package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/talkback/internal/app"
	"github.com/ent0n29/talkback/internal/config"
	"github.com/ent0n29/talkback/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(sigCtx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	log.Info().Str("backends", built.Detail).Msg("assistant ready")

	var httpServer *http.Server
	if cfg.BindAddr != "" {
		httpServer = &http.Server{
			Addr:    cfg.BindAddr,
			Handler: built.API.Router(),
		}
		go func() {
			log.Info().Str("addr", cfg.BindAddr).Msg("status server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	runErr := built.Driver.Run(sigCtx)
	interrupted := sigCtx.Err() != nil
	switch {
	case runErr == nil:
	case interrupted:
		log.Info().Msg("shutdown signal received")
	case errors.Is(runErr, context.Canceled):
	default:
		log.Error().Err(runErr).Msg("conversation failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if interrupted {
		// Pending speech is discarded rather than played out.
		built.Queue.Abort()
		select {
		case <-built.Queue.Done():
		case <-shutdownCtx.Done():
		}
	} else if err := built.Queue.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("speech queue did not finish in time")
		built.Queue.Abort()
	}
	built.Tracker.End()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
	}
	if err := built.Cleanup(); err != nil {
		log.Warn().Err(err).Msg("cleanup incomplete")
	}

	log.Info().Msg("shutdown complete")
}
