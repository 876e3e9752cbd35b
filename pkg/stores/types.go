package stores

import (
	"context"
	"time"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/vault"
)

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store defines the persistence layer for ignition state, the append-only
// operation log and encrypted credential records. The credential methods
// satisfy vault.Backend, so one store handle serves both the orchestrator
// and the vault.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Ignition state
	SaveIgnition(ctx context.Context, state *ignition.State) error
	GetIgnition(ctx context.Context, workspaceID string) (*ignition.State, error)
	ListIgnitions(ctx context.Context, limit, offset int) ([]*ignition.State, error)

	// Operation log
	AppendOperation(ctx context.Context, op *ignition.Operation) error
	ListOperations(ctx context.Context, workspaceID string, limit, offset int) ([]*ignition.Operation, error)

	// Credential records
	vault.Backend

	// Utility
	HealthCheck(ctx context.Context) error
}
