package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulcanci/vulcan-core/internal/config"
	"github.com/vulcanci/vulcan-core/internal/discovery"
	"github.com/vulcanci/vulcan-core/internal/learning"
	"github.com/vulcanci/vulcan-core/internal/llm"
	"github.com/vulcanci/vulcan-core/internal/plan"
	"github.com/vulcanci/vulcan-core/internal/runner"
	"github.com/vulcanci/vulcan-core/internal/session"
	"github.com/vulcanci/vulcan-core/internal/vm"
	"github.com/vulcanci/vulcan-core/internal/webhook"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Run a single workflow definition",
	Long: `Run one workflow definition immediately, without waiting for a webhook.
The run uses the same parser and sandbox pipeline as webhook-triggered runs.

Examples:
  vulcan run .vulcan/workflows/ci.yml
  vulcan run ci.yml --dry-run   # Execute against mock VMs`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Execute against mock VMs, for local testing")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading workflow: %w", err)
	}
	def := &discovery.Definition{
		Path: args[0],
		Name: filepath.Base(args[0]),
		Raw:  raw,
	}

	var store *learning.Store
	if cfg.Learning.Enabled {
		store, err = learning.NewStore(cfg.Learning.DataDir)
		if err != nil {
			return fmt.Errorf("opening learning store: %w", err)
		}
		defer store.Close()
	}

	var chat llm.Chatter
	if cfg.LLM.Provider != "" {
		chat = llm.New(llm.Options{
			Provider:  llm.Provider(cfg.LLM.Provider),
			Model:     cfg.LLM.Model,
			OllamaURL: cfg.LLM.OllamaURL,
			OpenAIURL: cfg.LLM.OpenAIURL,
			APIKey:    cfg.LLM.APIKey(),
		})
	}

	var provider vm.Provider
	var executor vm.Executor
	if runDryRun {
		provider = vm.NewMockProvider()
		executor = vm.NewMockExecutor()
	} else {
		provider = vm.NewHTTPProvider(cfg.VM.APIURL, cfg.VM.APIKey)
		executor = vm.NewHTTPExecutor(cfg.VM.APIURL, cfg.VM.APIKey)
	}

	sessions := session.NewManager(provider, session.Options{
		MaxConcurrent: cfg.VM.MaxConcurrent,
		MaxQueueWait:  cfg.MaxQueueWait(),
		AllocRetries:  cfg.VM.AllocRetries,
		RetryDelay:    2 * time.Second,
	})

	r := runner.New(plan.NewParser(chat, store), sessions, executor, store, runner.Options{
		VMType:      cfg.VM.Type,
		MaxParallel: cfg.Runner.MaxParallel,
	})

	ev := &webhook.Event{Kind: webhook.EventManualDispatch}
	report := r.Run(context.Background(), def, ev)

	fmt.Println()
	for _, res := range report.Results {
		mark := "✅"
		if res.ExitCode != 0 {
			mark = "❌"
		}
		fmt.Printf("%s %s (exit %d, %s)\n", mark, res.StepName, res.ExitCode, res.Duration.Round(time.Millisecond))
	}
	fmt.Println()
	fmt.Println(report.Summary)

	if report.Status != runner.StatusSucceeded {
		return fmt.Errorf("workflow %s", report.Status)
	}
	return nil
}
