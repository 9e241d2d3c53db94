package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models cablecheck.yml.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Oracle   OracleConfig    `yaml:"oracle"`
	Workflow WorkflowConfig  `yaml:"workflow"`
	Auth     AuthConfig      `yaml:"auth"`
	Log      LogConfig       `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	BasePath    string   `yaml:"base_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type OracleConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	BaseURL         string  `yaml:"base_url"`
	AzureEndpoint   string  `yaml:"azure_endpoint"`
	AzureAPIVersion string  `yaml:"azure_api_version"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// APIKey resolves the oracle key from the configured environment variable.
func (o OracleConfig) APIKey() string {
	if o.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(o.APIKeyEnv))
}

type WorkflowConfig struct {
	HITLMaxRetries int `yaml:"hitl_max_retries"`
	StepLimit      int `yaml:"step_limit"`
}

type AuthConfig struct {
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// JWTSecret resolves the signing secret; empty disables auth.
func (a AuthConfig) JWTSecret() string {
	if a.JWTSecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(a.JWTSecretEnv))
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var providers = map[string]bool{"gemini": true, "openai": true, "azure": true, "offline": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if !providers[c.Oracle.Provider] {
		return fmt.Errorf("config.oracle.provider must be one of gemini, openai, azure, offline (got %q)", c.Oracle.Provider)
	}
	if c.Oracle.Provider != "offline" && c.Oracle.Model == "" && c.Oracle.Provider != "azure" {
		return fmt.Errorf("config.oracle.model is required for provider %s", c.Oracle.Provider)
	}
	if c.Oracle.Provider == "azure" && c.Oracle.AzureEndpoint == "" {
		return fmt.Errorf("config.oracle.azure_endpoint is required for provider azure")
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("config.oracle.temperature must be within [0,2]")
	}
	if c.Workflow.HITLMaxRetries < 1 {
		return fmt.Errorf("config.workflow.hitl_max_retries must be at least 1")
	}
	if c.Workflow.StepLimit < 10 {
		return fmt.Errorf("config.workflow.step_limit must be at least 10")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("webhook %d url must be http(s)", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cablecheck.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cablecheck config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Unset keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: /api
  cors_origins: ["http://localhost:3000"]

oracle:
  # gemini | openai | azure | offline
  provider: gemini
  model: gemini-2.5-flash
  temperature: 0.1
  api_key_env: GOOGLE_API_KEY
  timeout_seconds: 60

workflow:
  hitl_max_retries: 3
  step_limit: 50

auth:
  # leave the variable unset to serve without authentication
  jwt_secret_env: CABLECHECK_JWT_SECRET

log:
  level: info
  format: json

webhooks: []
`
