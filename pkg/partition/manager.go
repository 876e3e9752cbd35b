package partition

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/telemetry"
)

//go:embed schema.sql
var baseSchema string

// Manager provisions isolated per-tenant data partitions as dedicated
// SQLite database files under a common data directory. It implements
// ignition.PartitionManager.
type Manager struct {
	dataDir string
	log     *telemetry.Logger
}

// NewManager creates a partition manager rooted at dataDir. The directory
// is created if it does not exist.
func NewManager(dataDir string, logger *telemetry.Logger) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	return &Manager{
		dataDir: dataDir,
		log:     logger.NewComponentLogger("partition"),
	}, nil
}

// Create provisions a partition for the workspace. The partition name is
// derived deterministically from the slug, so re-running an ignition for
// the same workspace targets the same partition. A leftover partition file
// from a crashed earlier attempt is replaced, not reused.
func (m *Manager) Create(ctx context.Context, workspaceID, slug string) (string, error) {
	name := NameFromSlug(slug)
	path := m.partitionPath(name)

	if _, err := os.Stat(path); err == nil {
		m.log.WithWorkspaceID(workspaceID).
			Warnf("Replacing leftover partition %s", name)
		if err := m.removeFiles(path); err != nil {
			return "", ignition.NewPermanentError(
				fmt.Sprintf("removing leftover partition %s", name), err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return "", ignition.NewTransientError(
			fmt.Sprintf("opening partition %s", name), err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		_ = m.removeFiles(path)
		return "", ignition.NewTransientError(
			fmt.Sprintf("initializing partition %s", name), err)
	}

	if _, err := db.ExecContext(ctx, baseSchema); err != nil {
		_ = m.removeFiles(path)
		return "", ignition.NewPermanentError(
			fmt.Sprintf("applying base schema to partition %s", name), err)
	}

	meta := `INSERT INTO partition_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	now := time.Now().UTC()
	for k, v := range map[string]string{
		"workspace_id": workspaceID,
		"slug":         slug,
	} {
		if _, err := db.ExecContext(ctx, meta, k, v, now); err != nil {
			_ = m.removeFiles(path)
			return "", ignition.NewPermanentError(
				fmt.Sprintf("writing partition metadata for %s", name), err)
		}
	}

	m.log.WithWorkspaceID(workspaceID).Infof("Created partition %s", name)
	return name, nil
}

// Drop removes a partition and its WAL sidecar files. Dropping a partition
// that does not exist succeeds, so compensating actions can run repeatedly.
func (m *Manager) Drop(_ context.Context, partitionName string, _ bool) error {
	path := m.partitionPath(partitionName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := m.removeFiles(path); err != nil {
		return ignition.NewTransientError(
			fmt.Sprintf("dropping partition %s", partitionName), err)
	}
	m.log.Infof("Dropped partition %s", partitionName)
	return nil
}

// Exists reports whether a partition file is present.
func (m *Manager) Exists(partitionName string) bool {
	_, err := os.Stat(m.partitionPath(partitionName))
	return err == nil
}

func (m *Manager) partitionPath(name string) string {
	return filepath.Join(m.dataDir, name+".db")
}

func (m *Manager) removeFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
