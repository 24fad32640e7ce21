package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vulcan",
	Short: "Vulcan — webhook-driven CI runner on ephemeral microVMs",
	Long: `Vulcan receives repository webhooks, matches them against workflow
definitions, and executes each workflow inside an isolated, short-lived VM.

Features:
  • Signed webhook intake — HMAC-verified deliveries only
  • Model-assisted workflow parsing with a deterministic fallback
  • Per-run VM isolation with a global concurrency ceiling
  • Execution history that tunes timeouts and cache hints over time

Learn more: https://github.com/vulcanci/vulcan-core`,
	Version: Version,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate("vulcan version {{.Version}}\n")

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}
