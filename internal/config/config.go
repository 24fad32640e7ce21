// Package config provides configuration management for vulcan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the vulcan configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	VM       VMConfig       `yaml:"vm"`
	LLM      LLMConfig      `yaml:"llm"`
	Runner   RunnerConfig   `yaml:"runner"`
	Learning LearningConfig `yaml:"learning"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WebhookConfig holds inbound-webhook settings.
type WebhookConfig struct {
	Secret       string `yaml:"secret"`        // HMAC signing secret
	WorkflowsDir string `yaml:"workflows_dir"` // directory scanned for definitions
}

// VMConfig holds the sandbox control-plane settings.
type VMConfig struct {
	APIURL        string `yaml:"api_url"`
	APIKey        string `yaml:"api_key"`
	Type          string `yaml:"type"`           // sandbox flavor, e.g. "standard"
	MaxConcurrent int    `yaml:"max_concurrent"` // session ceiling
	MaxQueueWaitS int    `yaml:"max_queue_wait_seconds"`
	AllocRetries  int    `yaml:"alloc_retries"`
}

// LLMConfig selects the model backend for the workflow parser.
type LLMConfig struct {
	Provider  string `yaml:"provider"`    // ollama | openai, empty disables
	Model     string `yaml:"model"`       // model name
	OllamaURL string `yaml:"ollama_url"`  // Ollama API URL (default: http://localhost:11434)
	OpenAIURL string `yaml:"openai_url"`  // OpenAI-compatible API URL
	APIKeyEnv string `yaml:"api_key_env"` // Env var name for API key
}

// RunnerConfig bounds run fan-out.
type RunnerConfig struct {
	MaxParallel int `yaml:"max_parallel"`
}

// LearningConfig controls the execution-history store.
type LearningConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"` // default ~/.vulcan
}

// ConfigPath returns the path to the config file (~/.vulcan/config.yaml).
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".vulcan", "config.yaml"), nil
}

// Load reads and parses the config file, then applies VULCAN_* environment
// overrides.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at an explicit path. A missing file yields the
// defaults rather than an error.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}

	if c.Webhook.WorkflowsDir == "" {
		c.Webhook.WorkflowsDir = ".vulcan/workflows"
	}

	if c.VM.APIURL == "" {
		c.VM.APIURL = "http://localhost:8080"
	}
	if c.VM.Type == "" {
		c.VM.Type = "standard"
	}
	if c.VM.MaxConcurrent == 0 {
		c.VM.MaxConcurrent = 5
	}
	if c.VM.MaxQueueWaitS == 0 {
		c.VM.MaxQueueWaitS = 30
	}
	if c.VM.AllocRetries == 0 {
		c.VM.AllocRetries = 3
	}

	if c.LLM.OllamaURL == "" {
		c.LLM.OllamaURL = "http://localhost:11434"
	}
	if c.LLM.Provider != "" && c.LLM.Model == "" {
		c.LLM.Model = "llama3.2"
	}

	if c.Runner.MaxParallel == 0 {
		c.Runner.MaxParallel = 4
	}

	if c.Learning.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Learning.DataDir = filepath.Join(home, ".vulcan")
		}
	}
}

// applyEnv overrides selected fields from the environment, so deployments
// can keep secrets out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VULCAN_WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("VULCAN_WORKFLOWS_DIR"); v != "" {
		c.Webhook.WorkflowsDir = v
	}
	if v := os.Getenv("VULCAN_VM_API_URL"); v != "" {
		c.VM.APIURL = v
	}
	if v := os.Getenv("VULCAN_VM_API_KEY"); v != "" {
		c.VM.APIKey = v
	}
	if v := os.Getenv("VULCAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// MaxQueueWait returns the admission wait bound as a duration.
func (c *Config) MaxQueueWait() time.Duration {
	return time.Duration(c.VM.MaxQueueWaitS) * time.Second
}

// APIKey resolves the model backend's API key from the configured env var.
func (l *LLMConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// Save writes config back to file.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config at an explicit path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cannot serialize config: %w", err)
	}

	header := "# Vulcan Configuration\n# https://github.com/vulcanci/vulcan-core\n\n"
	content := header + string(data)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}

	return nil
}

// Default returns a default configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
