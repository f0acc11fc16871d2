package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"laundryonline/config"
)

var flagConfig string

// logger is the process logger; every line carries the service prefix.
var logger = log.New(os.Stdout, "laundryonline ", log.LstdFlags)

var rootCmd = &cobra.Command{
	Use:   "laundryd",
	Short: "Laundry machine status and notification service",
	Long: `laundryd keeps a live list of the laundry machines, notifies the
people following a machine when its cycle completes, and serves the
HTTP and WebSocket API.

Examples:
  laundryd serve --config ./config/config.yaml
  laundryd migrate
  laundryd vapid-keys`,
	SilenceUsage: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", defaultPath, "path to the YAML configuration (env CONFIG_PATH)")
}

// loadConfig reads the file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	logger.Printf("configuration loaded successfully from %s", flagConfig)
	return cfg, nil
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetPrefix("laundryonline ")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
