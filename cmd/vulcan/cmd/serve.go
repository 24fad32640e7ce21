package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulcanci/vulcan-core/internal/config"
	"github.com/vulcanci/vulcan-core/internal/learning"
	"github.com/vulcanci/vulcan-core/internal/llm"
	"github.com/vulcanci/vulcan-core/internal/plan"
	"github.com/vulcanci/vulcan-core/internal/runner"
	"github.com/vulcanci/vulcan-core/internal/server"
	"github.com/vulcanci/vulcan-core/internal/session"
	"github.com/vulcanci/vulcan-core/internal/vm"
)

var (
	servePort   int
	serveDryRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the webhook server and run workflows for incoming events.

The server verifies every delivery against the configured HMAC secret,
matches it against the workflow definitions directory, and executes each
matching workflow inside an isolated VM.

Examples:
  vulcan serve               # Start with the configured port (default 8090)
  vulcan serve --port 3000   # Start on a custom port
  vulcan serve --dry-run     # Use in-memory mocks instead of the VM fleet`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Execute against mock VMs, for local testing")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("no webhook secret configured; set webhook.secret or VULCAN_WEBHOOK_SECRET")
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
		log.Printf("workflow parsing: %s via %s", cfg.LLM.Model, cfg.LLM.Provider)
	} else {
		log.Printf("workflow parsing: deterministic fallback only")
	}

	var provider vm.Provider
	var executor vm.Executor
	if serveDryRun {
		provider = vm.NewMockProvider()
		executor = vm.NewMockExecutor()
		log.Printf("⚠️  dry-run: executing against mock VMs")
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

	srv := server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		WebhookSecret: cfg.Webhook.Secret,
		WorkflowsDir:  cfg.Webhook.WorkflowsDir,
	}, r, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
