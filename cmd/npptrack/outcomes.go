package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/server"
	"github.com/njabbott/npp-simulation/pkg/rabbitmq"
)

func outcomesCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Print tracking outcomes published to RabbitMQ",
		Long: `Bind a private queue to the tracking exchange and print every outcome the
tracker publishes. Use --status to only follow some final statuses.`,
		Example: `  npptrack outcomes
  npptrack outcomes --status rejected --status unavailable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is not set")
			}
			consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer consumer.Close()

			keys := []string{rabbitmq.RoutingKeyPrefix + "#"}
			if len(statuses) > 0 {
				keys = keys[:0]
				for _, s := range statuses {
					keys = append(keys, rabbitmq.RoutingKey(domain.PaymentStatus(strings.ToUpper(s))))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listening on %s for %s\n", cfg.TrackingExchange, strings.Join(keys, ", "))
			err = consumer.Consume(ctx, cfg.TrackingExchange, keys, func(routingKey string, body []byte) bool {
				var outcome domain.TrackingOutcome
				if err := json.Unmarshal(body, &outcome); err != nil {
					fmt.Fprintf(out, "%s: unreadable outcome: %v\n", routingKey, err)
					return true
				}
				fmt.Fprintf(out, "%s  %-11s %s $%s messages=%d %s\n",
					outcome.OccurredAt.Local().Format("15:04:05"), outcome.Status, outcome.PaymentID,
					outcome.Amount.StringFixed(2), outcome.Messages, outcome.Message)
				return true
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only print these statuses")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg)
		},
	}
}
