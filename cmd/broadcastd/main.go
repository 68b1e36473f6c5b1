package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/sss97133/nuke-sub012/internal/config"
	"github.com/sss97133/nuke-sub012/internal/events"
	"github.com/sss97133/nuke-sub012/internal/obs"
	"github.com/sss97133/nuke-sub012/internal/ws"
)

func main() {
	obs.InitLogging("broadcastd")
	cfg := loadConfig()

	log.Info().Str("url", cfg.NatsURL).Msg("connecting to NATS")
	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsConn.Close()

	wsManager := ws.NewManager()
	go wsManager.Run()

	// Relay committed auction events straight to the per-listing
	// WebSocket feeds.
	sub, err := natsConn.Subscribe(events.SubjectPrefix+".*", func(msg *nats.Msg) {
		listingID := events.ListingIDFromSubject(msg.Subject)
		if listingID == "" {
			return
		}
		wsManager.Broadcast(listingID, msg.Data)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to auction events")
	}
	defer sub.Unsubscribe()
	log.Info().Str("subject", events.SubjectPrefix+".*").Msg("subscribed")

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      ws.NewHandler(wsManager).SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("broadcastd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("stopped")
}

// Config holds application configuration.
type Config struct {
	ServerAddr string
	NatsURL    string
}

// loadConfig loads configuration from environment variables.
func loadConfig() *Config {
	return &Config{
		ServerAddr: config.GetEnv("SERVER_ADDR", ":8081"),
		NatsURL:    config.GetEnv("NATS_URL", "nats://localhost:4222"),
	}
}
