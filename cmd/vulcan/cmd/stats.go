package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vulcanci/vulcan-core/internal/config"
	"github.com/vulcanci/vulcan-core/internal/learning"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show execution-history statistics",
	Long: `Show aggregate statistics from the execution-history store: how many
distinct commands have been observed and their overall success rate.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := learning.NewStore(cfg.Learning.DataDir)
	if err != nil {
		return fmt.Errorf("opening learning store: %w", err)
	}
	defer store.Close()

	stats, err := store.GetStats()
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Println("📊 Execution history")
	fmt.Printf("  commands seen:  %s\n", humanize.Comma(int64(stats.UniqueSignatures)))
	fmt.Printf("  total records:  %s\n", humanize.Comma(int64(stats.TotalRecords)))
	fmt.Printf("  successes:      %s\n", humanize.Comma(int64(stats.TotalSuccesses)))
	fmt.Printf("  failures:       %s\n", humanize.Comma(int64(stats.TotalFailures)))
	if stats.TotalRecords > 0 {
		fmt.Printf("  success rate:   %.1f%%\n", stats.SuccessRate*100)
	}

	return nil
}
