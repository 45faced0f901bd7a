/**
 * @description
 * This is the main entry point for the NPP payment tracker shell. It loads the
 * configuration and serves the workspace API until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: Loads a local .env into the environment.
 * - internal/config, internal/server: Settings and component wiring.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/njabbott/npp-simulation/internal/config"
	"github.com/njabbott/npp-simulation/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file loaded; using process environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting npp tracker\" port=%s", cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"server failed\" err=%v", err)
	}
}
