// Package cli implements the companion-gateway commands.
package cli

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lampstand/companion-gateway/internal/config"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "companion-gateway",
	Short: "Streaming chat backend for the companion app",
	Long: "companion-gateway authenticates callers, enforces daily message quotas,\n" +
		"assembles personalized prompts from stored context, and streams completions\n" +
		"from an OpenAI-compatible provider over SSE.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (optional)")
}

// loadConfig reads .env, the optional YAML file and the environment, then
// configures the global logger from the result.
func loadConfig() (*config.Config, error) {
	// Missing .env is fine; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	return cfg, nil
}
