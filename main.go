// Command openai-like-api runs the OpenAI-compatible chat gateway.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	rootCmd := &cobra.Command{
		Use:           "openai-like-api",
		Short:         "OpenAI-compatible chat gateway with persistent sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(serve, newTokenCmd(), newWatchCmd())
	return rootCmd
}
