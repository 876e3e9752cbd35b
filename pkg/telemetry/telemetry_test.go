package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "shout"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	require.Error(t, cfg.Validate())
}

func TestDisabledMetricsAreNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	// None of these may panic on a no-op instance.
	m.RecordIgnitionStarted("ops")
	m.RecordIgnitionCompleted("active", time.Second)
	m.RecordStep("create_partition", "completed", time.Second)
	m.RecordRollback()
	m.RecordUndoFailure("provision_droplet")
	m.RecordError("transient", "PROVISION_FAILED")
}

func TestEnabledMetricsRegister(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "hangar",
	})
	require.NoError(t, err)

	m.RecordIgnitionStarted("ops")
	m.RecordIgnitionCompleted("active", 2*time.Second)
	m.RecordStep("finalize", "completed", time.Millisecond)
	assert.NotNil(t, m.Handler())
}

func TestLoggerFieldHelpers(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	// Chaining must return independent loggers without mutating the parent.
	child := logger.WithWorkspaceID("ws-1").WithStep("finalize")
	assert.NotSame(t, logger, child)

	component := logger.NewComponentLogger("ignition")
	assert.NotSame(t, logger, component)
}

func TestNewTelemetryDisabledSubsystems(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	require.NotNil(t, tel.Logger)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Metrics)
	require.NoError(t, tel.Shutdown(t.Context()))
}
