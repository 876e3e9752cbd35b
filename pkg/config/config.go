package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from a YAML file with
// environment overrides for secrets.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Partitions PartitionsConfig `yaml:"partitions"`
	Vault      VaultConfig      `yaml:"vault"`
	Compute    ComputeConfig    `yaml:"compute"`
	Agent      AgentConfig      `yaml:"agent"`
	Workflows  WorkflowsConfig  `yaml:"workflows"`
	Ignition   IgnitionConfig   `yaml:"ignition"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServiceConfig identifies the service deployment.
type ServiceConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`
}

// DatabaseConfig configures the service state database.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// PartitionsConfig configures tenant data partitions.
type PartitionsConfig struct {
	// DataDir is the directory tenant partition files live in.
	DataDir string `yaml:"data_dir" validate:"required"`
}

// VaultConfig configures credential encryption.
type VaultConfig struct {
	// MasterKey is the service master key; per-workspace keys are derived
	// from it. Overridden by HANGAR_VAULT_MASTER_KEY.
	MasterKey string `yaml:"master_key" validate:"required,min=32"`
}

// ComputeConfig configures DigitalOcean droplet provisioning.
type ComputeConfig struct {
	// Token is the API token. Overridden by DIGITALOCEAN_TOKEN.
	Token string `yaml:"token" validate:"required"`

	// Image is the droplet image slug.
	Image string `yaml:"image" validate:"required"`

	// SSHKeyFingerprints are injected into every workspace droplet.
	SSHKeyFingerprints []string `yaml:"ssh_key_fingerprints"`

	// UserDataFile is an optional cloud-init script path.
	UserDataFile string `yaml:"user_data_file"`

	// WaitAttempts and WaitDelaySeconds bound the wait for a new droplet
	// to become active.
	WaitAttempts     int `yaml:"wait_attempts" validate:"min=0"`
	WaitDelaySeconds int `yaml:"wait_delay_seconds" validate:"min=0"`
}

// AgentConfig configures the workspace agent client.
type AgentConfig struct {
	Port           int    `yaml:"port" validate:"min=0,max=65535"`
	Token          string `yaml:"token" validate:"required"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=0"`
}

// WorkflowsConfig configures workflow template deployment.
type WorkflowsConfig struct {
	// TemplateDir holds the *.json workflow templates deployed to every
	// new workspace.
	TemplateDir string `yaml:"template_dir" validate:"required"`
}

// IgnitionConfig tunes the ignition saga.
type IgnitionConfig struct {
	// HandshakeAttempts is the agent health poll budget.
	HandshakeAttempts int `yaml:"handshake_attempts" validate:"min=0"`

	// HandshakeDelaySeconds is the pause between health polls.
	HandshakeDelaySeconds int `yaml:"handshake_delay_seconds" validate:"min=0"`

	// MaxStepRetries is the extra-attempt budget for transient step
	// failures. Zero rolls back on first failure.
	MaxStepRetries int `yaml:"max_step_retries" validate:"min=0"`

	// RetryBaseDelaySeconds is the starting backoff between step retries.
	RetryBaseDelaySeconds int `yaml:"retry_base_delay_seconds" validate:"min=0"`
}

// TelemetryConfig configures logging, metrics and tracing.
type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsListen  string `yaml:"metrics_listen"`

	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

var validate = validator.New()

// Default returns a configuration with every tunable at its default.
// Required fields (tokens, keys, paths) are left empty and must come from
// the file or environment.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "hangar",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path: "hangar.db",
		},
		Partitions: PartitionsConfig{
			DataDir: "partitions",
		},
		Compute: ComputeConfig{
			Image:            "docker-20-04",
			WaitAttempts:     60,
			WaitDelaySeconds: 5,
		},
		Agent: AgentConfig{
			Port:           8870,
			TimeoutSeconds: 30,
		},
		Workflows: WorkflowsConfig{
			TemplateDir: "templates",
		},
		Ignition: IgnitionConfig{
			HandshakeAttempts:     30,
			HandshakeDelaySeconds: 10,
			MaxStepRetries:        0,
			RetryBaseDelaySeconds: 1,
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "console",
			MetricsListen:   ":9090",
			TracingExporter: "stdout",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides for secrets, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HANGAR_VAULT_MASTER_KEY"); v != "" {
		c.Vault.MasterKey = v
	}
	if v := os.Getenv("DIGITALOCEAN_TOKEN"); v != "" {
		c.Compute.Token = v
	}
	if v := os.Getenv("HANGAR_AGENT_TOKEN"); v != "" {
		c.Agent.Token = v
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HandshakeDelay returns the handshake poll delay as a duration.
func (c *IgnitionConfig) HandshakeDelay() time.Duration {
	return time.Duration(c.HandshakeDelaySeconds) * time.Second
}

// RetryBaseDelay returns the step retry base delay as a duration.
func (c *IgnitionConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds) * time.Second
}

// WaitDelay returns the droplet wait poll delay as a duration.
func (c *ComputeConfig) WaitDelay() time.Duration {
	return time.Duration(c.WaitDelaySeconds) * time.Second
}

// Timeout returns the agent request timeout as a duration.
func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
