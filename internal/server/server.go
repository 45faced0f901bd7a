/**
 * @description
 * Package server wires the tracker shell together: the NPP API client, the
 * optional Redis session mirror, the optional RabbitMQ outcome publisher, the
 * workspace set with its idle sweeper, and the HTTP router.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Session mirror connection.
 * - github.com/go-chi/chi/v5: Root router.
 * - pkg/rabbitmq: Tracking outcome publisher.
 */
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/njabbott/npp-simulation/internal/api"
	"github.com/njabbott/npp-simulation/internal/app"
	"github.com/njabbott/npp-simulation/internal/config"
	"github.com/njabbott/npp-simulation/internal/store"
	"github.com/njabbott/npp-simulation/pkg/nppclient"
	"github.com/njabbott/npp-simulation/pkg/rabbitmq"
)

// Components are the shared collaborators built from configuration.
type Components struct {
	Client    *nppclient.Client
	Publisher *rabbitmq.TrackingPublisher
	Mirror    store.SessionMirror
	Logger    *slog.Logger

	redis *redis.Client
}

// Build connects everything the configuration asks for. Redis and RabbitMQ
// are optional: a missing or unreachable broker is logged and skipped.
func Build(cfg config.Config) *Components {
	c := &Components{
		Client: nppclient.NewClient(cfg.NPPAPIBaseURL, cfg.NPPAPITimeout()),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	c.Publisher = rabbitmq.NewTrackingPublisher(rabbitmq.NewPublisher(cfg.RabbitMQURL), cfg.TrackingExchange)

	if cfg.RedisURL == "" {
		log.Println("level=info component=bootstrap msg=\"redis url missing; sessions kept in memory only\" env=REDIS_URL")
		return c
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; sessions kept in memory only\" err=%v", err)
		return c
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; sessions kept in memory only\" err=%v", err)
		client.Close()
		return c
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	c.redis = client
	c.Mirror = store.NewRedisMirror(client, cfg.SessionKeyPrefix, cfg.SessionTTL())
	return c
}

// Dependencies returns the page dependencies backed by these components.
func (c *Components) Dependencies() app.Dependencies {
	deps := app.NewDependencies(c.Client, c.Publisher)
	deps.Logger = c.Logger
	return deps
}

// Close releases the broker connections.
func (c *Components) Close() {
	c.Publisher.Close()
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// Run serves the shell API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config) error {
	components := Build(cfg)
	defer components.Close()

	workspaces := app.NewWorkspaces(components.Dependencies(), components.Mirror)
	defer workspaces.Close()

	sweeper := app.NewSweeper(workspaces, components.Logger, cfg.WorkspaceSweepSchedule, cfg.WorkspaceIdle())
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start workspace sweeper: %w", err)
	}
	defer func() { <-sweeper.Stop().Done() }()

	handler := api.NewHandler(workspaces, components.Client)
	router := chi.NewRouter()
	router.Mount("/", api.NewRouter(handler, cfg.AllowedOrigins()))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s npp_api=%s", serverAddr, cfg.NPPAPIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=http msg=\"shutdown complete\"")
	return nil
}
