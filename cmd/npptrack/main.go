// npptrack is a terminal client for the NPP payment tracker. It sends a
// payment through the same workflow page the shell API drives and follows its
// lifecycle until it settles, fails, or tracking becomes unavailable.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/njabbott/npp-simulation/internal/config"
)

var (
	configDir string
	apiURL    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "npptrack",
		Short:   "Send NPP payments and follow them to completion",
		Version: "0.1.0",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Println("level=debug component=npptrack msg=\"no .env file loaded\"")
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding an optional .env file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "NPP API base URL (overrides NPP_API_BASE_URL)")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(payIDsCmd())
	rootCmd.AddCommand(outcomesCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the shared configuration and applies the --api override.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if apiURL != "" {
		cfg.NPPAPIBaseURL = apiURL
	}
	return cfg, nil
}
