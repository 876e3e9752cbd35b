package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/hangarhq/hangar/pkg/agent"
	"github.com/hangarhq/hangar/pkg/compute"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/partition"
	"github.com/hangarhq/hangar/pkg/stores"
	"github.com/hangarhq/hangar/pkg/telemetry"
	"github.com/hangarhq/hangar/pkg/vault"
	"github.com/hangarhq/hangar/pkg/workflows"
)

// runtime holds the wired service components a command needs.
type runtime struct {
	cfg   *config.Config
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
}

// openRuntime loads configuration, initializes telemetry and opens the
// state database. Callers must Close it.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = cfg.Service.Name
	telCfg.Environment = cfg.Service.Environment
	telCfg.Logging.Level = cfg.Telemetry.LogLevel
	telCfg.Logging.Format = cfg.Telemetry.LogFormat
	telCfg.Metrics.Enabled = cfg.Telemetry.MetricsEnabled
	if cfg.Telemetry.MetricsListen != "" {
		telCfg.Metrics.ListenAddress = cfg.Telemetry.MetricsListen
	}
	telCfg.Tracing.Enabled = cfg.Telemetry.TracingEnabled
	if cfg.Telemetry.TracingExporter != "" {
		telCfg.Tracing.Exporter = cfg.Telemetry.TracingExporter
	}
	telCfg.Tracing.Endpoint = cfg.Telemetry.TracingEndpoint

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, tel: tel, store: store}, nil
}

// Close releases the runtime's resources.
func (r *runtime) Close(ctx context.Context) {
	_ = r.store.Close()
	_ = r.tel.Shutdown(ctx)
}

// buildOrchestrator wires the production collaborators into an
// orchestrator.
func (r *runtime) buildOrchestrator() (*ignition.Orchestrator, error) {
	cfg := r.cfg
	logger := r.tel.Logger

	partitions, err := partition.NewManager(cfg.Partitions.DataDir, logger)
	if err != nil {
		return nil, err
	}

	credVault, err := vault.New(cfg.Vault.MasterKey, r.store)
	if err != nil {
		return nil, err
	}

	userData := ""
	if cfg.Compute.UserDataFile != "" {
		data, err := os.ReadFile(cfg.Compute.UserDataFile)
		if err != nil {
			return nil, fmt.Errorf("reading user data file: %w", err)
		}
		userData = string(data)
	}

	provisioner, err := compute.NewProvisioner(compute.Config{
		Token:              cfg.Compute.Token,
		Image:              cfg.Compute.Image,
		SSHKeyFingerprints: cfg.Compute.SSHKeyFingerprints,
		UserData:           userData,
		WaitAttempts:       cfg.Compute.WaitAttempts,
		WaitDelay:          cfg.Compute.WaitDelay(),
	}, logger)
	if err != nil {
		return nil, err
	}

	agentClient := agent.NewClient(agent.Config{
		Port:    cfg.Agent.Port,
		Token:   cfg.Agent.Token,
		Timeout: cfg.Agent.Timeout(),
	}, logger)

	templates, err := workflows.LoadTemplates(cfg.Workflows.TemplateDir)
	if err != nil {
		return nil, err
	}
	deployer, err := workflows.NewDeployer(templates, agentClient, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.MetricsEnabled {
		if err := r.tel.Metrics.StartMetricsServer(); err != nil {
			return nil, err
		}
	}

	return ignition.New(ignition.Collaborators{
		Store:      r.store,
		Partitions: partitions,
		Vault:      credVault,
		Compute:    provisioner,
		Agent:      agentClient,
		Deployer:   deployer,
	}, ignition.Options{
		HandshakeAttempts: cfg.Ignition.HandshakeAttempts,
		HandshakeDelay:    cfg.Ignition.HandshakeDelay(),
		MaxStepRetries:    cfg.Ignition.MaxStepRetries,
		RetryBaseDelay:    cfg.Ignition.RetryBaseDelay(),
		Logger:            logger,
		Metrics:           r.tel.Metrics,
		Tracer:            r.tel.Tracer,
	})
}
