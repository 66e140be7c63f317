package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/avolkov/huddle/internal/adapters/http"
	"github.com/avolkov/huddle/internal/app"
	"github.com/avolkov/huddle/internal/config"
	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/media"
	"github.com/avolkov/huddle/internal/media/memory"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	engine := memory.NewEngine(memory.Options{
		AnnouncedIP: cfg.AnnouncedIP,
		MinPort:     cfg.RTCMinPort,
		MaxPort:     cfg.RTCMaxPort,
	})
	transport := media.TransportOptions{
		ListenIP:    "0.0.0.0",
		AnnouncedIP: cfg.AnnouncedIP,
		EnableUDP:   true,
		EnableTCP:   true,
		PreferUDP:   true,
	}
	coord := app.NewCoordinator(core.NewRegistry(), engine, transport, cfg.CallTimeout)

	r := router.SetupRouter(ctx, cfg, coord)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("announced_ip", cfg.AnnouncedIP).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
