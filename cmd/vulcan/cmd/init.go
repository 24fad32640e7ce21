package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vulcanci/vulcan-core/internal/config"
)

var (
	initNonInteractive bool
	initForce          bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize vulcan configuration",
	Long: `Initialize vulcan with an interactive setup wizard.

Examples:
  vulcan init                    # Interactive: secret, VM fleet, model backend
  vulcan init --non-interactive  # Write defaults with a generated secret

The wizard writes ~/.vulcan/config.yaml. Secrets can instead be supplied at
runtime through VULCAN_WEBHOOK_SECRET and VULCAN_VM_API_KEY.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Skip interactive prompts, use defaults")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config")
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	// Prompting needs a terminal; fall back to defaults otherwise.
	if initNonInteractive || !term.IsTerminal(int(os.Stdin.Fd())) {
		return runNonInteractiveInit(path)
	}

	return runInteractiveInit(path)
}

func runNonInteractiveInit(path string) error {
	cfg := config.Default()
	cfg.Webhook.Secret = generateSecret()
	cfg.Learning.Enabled = true

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	fmt.Printf("✅ Config written to %s\n", path)
	fmt.Printf("   Webhook secret: %s\n", cfg.Webhook.Secret)
	fmt.Println("   Configure this secret on the sending side.")
	return nil
}

func runInteractiveInit(path string) error {
	fmt.Println()
	fmt.Println("🔥 Welcome to vulcan!")
	fmt.Println()

	cfg := config.Default()

	secretPrompt := &survey.Password{
		Message: "Webhook HMAC secret (empty generates one):",
	}
	var secret string
	if err := survey.AskOne(secretPrompt, &secret); err != nil {
		return err
	}
	if secret == "" {
		secret = generateSecret()
		fmt.Printf("   Generated secret: %s\n", secret)
	}
	cfg.Webhook.Secret = secret

	vmURLPrompt := &survey.Input{
		Message: "VM control-plane URL:",
		Default: cfg.VM.APIURL,
	}
	if err := survey.AskOne(vmURLPrompt, &cfg.VM.APIURL); err != nil {
		return err
	}

	llmPrompt := &survey.Select{
		Message: "Model backend for workflow parsing:",
		Options: []string{"none (deterministic parsing only)", "ollama", "openai"},
		Default: "none (deterministic parsing only)",
	}
	var llmChoice string
	if err := survey.AskOne(llmPrompt, &llmChoice); err != nil {
		return err
	}
	switch llmChoice {
	case "ollama":
		cfg.LLM.Provider = "ollama"
		cfg.LLM.Model = "llama3.2"
	case "openai":
		cfg.LLM.Provider = "openai"
		cfg.LLM.Model = "gpt-4o-mini"
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}

	learningPrompt := &survey.Confirm{
		Message: "Record execution history for timeout and cache suggestions?",
		Default: true,
	}
	if err := survey.AskOne(learningPrompt, &cfg.Learning.Enabled); err != nil {
		return err
	}

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("✅ Config written to %s\n", path)
	fmt.Println("   Start the server with: vulcan serve")
	return nil
}

func generateSecret() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
