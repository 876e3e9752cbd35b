package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
service:
  name: hangar
  environment: production
database:
  path: /var/lib/hangar/hangar.db
partitions:
  data_dir: /var/lib/hangar/partitions
vault:
  master_key: 0123456789abcdef0123456789abcdef
compute:
  token: do-token
  image: docker-20-04
agent:
  token: agent-token
workflows:
  template_dir: /etc/hangar/templates
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, "/var/lib/hangar/hangar.db", cfg.Database.Path)
	assert.Equal(t, "/var/lib/hangar/partitions", cfg.Partitions.DataDir)

	// Defaults fill in what the file omitted.
	assert.Equal(t, 8870, cfg.Agent.Port)
	assert.Equal(t, 30, cfg.Ignition.HandshakeAttempts)
	assert.Equal(t, 10*time.Second, cfg.Ignition.HandshakeDelay())
	assert.Equal(t, 5*time.Second, cfg.Compute.WaitDelay())
	assert.Equal(t, "info", cfg.Telemetry.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsShortMasterKey(t *testing.T) {
	cfg := `
service:
  name: hangar
  environment: development
vault:
  master_key: short
compute:
  token: do-token
  image: docker-20-04
agent:
  token: agent-token
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MasterKey")
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	cfg := `
service:
  name: hangar
  environment: lab
vault:
  master_key: 0123456789abcdef0123456789abcdef
compute:
  token: do-token
  image: docker-20-04
agent:
  token: agent-token
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("HANGAR_VAULT_MASTER_KEY", "fedcba9876543210fedcba9876543210")
	t.Setenv("DIGITALOCEAN_TOKEN", "env-do-token")
	t.Setenv("HANGAR_AGENT_TOKEN", "env-agent-token")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "fedcba9876543210fedcba9876543210", cfg.Vault.MasterKey)
	assert.Equal(t, "env-do-token", cfg.Compute.Token)
	assert.Equal(t, "env-agent-token", cfg.Agent.Token)
}

func TestDefaultHasSaneTunables(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60, cfg.Compute.WaitAttempts)
	assert.Zero(t, cfg.Ignition.MaxStepRetries)
	assert.Equal(t, time.Second, cfg.Ignition.RetryBaseDelay())
}
