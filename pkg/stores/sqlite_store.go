package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/vault"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection-level setting
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveIgnition inserts or replaces the ignition record for a workspace.
func (s *SQLiteStore) SaveIgnition(ctx context.Context, state *ignition.State) error {
	workflowIDs, err := encodeStringList(state.WorkflowIDs)
	if err != nil {
		return fmt.Errorf("failed to encode workflow ids: %w", err)
	}
	credentialIDs, err := encodeStringList(state.CredentialIDs)
	if err != nil {
		return fmt.Errorf("failed to encode credential ids: %w", err)
	}

	query := `
		INSERT INTO ignitions (
			workspace_id, status, current_step, total_steps, partition_name,
			droplet_id, droplet_ip, workflow_ids, credential_ids, error,
			failed_step, requested_by, region, droplet_size, started_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			status = excluded.status,
			current_step = excluded.current_step,
			total_steps = excluded.total_steps,
			partition_name = excluded.partition_name,
			droplet_id = excluded.droplet_id,
			droplet_ip = excluded.droplet_ip,
			workflow_ids = excluded.workflow_ids,
			credential_ids = excluded.credential_ids,
			error = excluded.error,
			failed_step = excluded.failed_step,
			requested_by = excluded.requested_by,
			region = excluded.region,
			droplet_size = excluded.droplet_size,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		state.WorkspaceID,
		state.Status,
		state.CurrentStep,
		state.TotalSteps,
		nullString(state.PartitionName),
		nullString(state.DropletID),
		nullString(state.DropletIP),
		workflowIDs,
		credentialIDs,
		nullString(state.Error),
		nullString(state.FailedStep),
		state.RequestedBy,
		state.Region,
		state.DropletSize,
		state.StartedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save ignition: %w", err)
	}
	return nil
}

// GetIgnition retrieves the ignition record for a workspace. Returns an
// error matching ignition.ErrNotFound when no record exists.
func (s *SQLiteStore) GetIgnition(ctx context.Context, workspaceID string) (*ignition.State, error) {
	query := `
		SELECT workspace_id, status, current_step, total_steps, partition_name,
		       droplet_id, droplet_ip, workflow_ids, credential_ids, error,
		       failed_step, requested_by, region, droplet_size, started_at, updated_at
		FROM ignitions
		WHERE workspace_id = ?
	`
	return s.scanIgnition(s.db.QueryRowContext(ctx, query, workspaceID))
}

// ListIgnitions returns ignition records ordered by most recently updated.
func (s *SQLiteStore) ListIgnitions(ctx context.Context, limit, offset int) ([]*ignition.State, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT workspace_id, status, current_step, total_steps, partition_name,
		       droplet_id, droplet_ip, workflow_ids, credential_ids, error,
		       failed_step, requested_by, region, droplet_size, started_at, updated_at
		FROM ignitions
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ignitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []*ignition.State
	for rows.Next() {
		st, err := s.scanIgnition(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanIgnition(row rowScanner) (*ignition.State, error) {
	var (
		st            ignition.State
		partitionName sql.NullString
		dropletID     sql.NullString
		dropletIP     sql.NullString
		workflowIDs   sql.NullString
		credentialIDs sql.NullString
		errMsg        sql.NullString
		failedStep    sql.NullString
	)

	err := row.Scan(
		&st.WorkspaceID,
		&st.Status,
		&st.CurrentStep,
		&st.TotalSteps,
		&partitionName,
		&dropletID,
		&dropletIP,
		&workflowIDs,
		&credentialIDs,
		&errMsg,
		&failedStep,
		&st.RequestedBy,
		&st.Region,
		&st.DropletSize,
		&st.StartedAt,
		&st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ignition.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ignition: %w", err)
	}

	st.PartitionName = partitionName.String
	st.DropletID = dropletID.String
	st.DropletIP = dropletIP.String
	st.Error = errMsg.String
	st.FailedStep = failedStep.String

	if st.WorkflowIDs, err = decodeStringList(workflowIDs); err != nil {
		return nil, fmt.Errorf("failed to decode workflow ids: %w", err)
	}
	if st.CredentialIDs, err = decodeStringList(credentialIDs); err != nil {
		return nil, fmt.Errorf("failed to decode credential ids: %w", err)
	}
	return &st, nil
}

// AppendOperation appends one entry to the operation log.
func (s *SQLiteStore) AppendOperation(ctx context.Context, op *ignition.Operation) error {
	var result sql.NullString
	if op.Result != nil {
		encoded, err := json.Marshal(op.Result)
		if err != nil {
			return fmt.Errorf("failed to encode operation result: %w", err)
		}
		result = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `
		INSERT INTO operations (workspace_id, operation, status, result, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		op.WorkspaceID, op.Name, op.Status, result, op.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

// ListOperations returns the operation log for a workspace in append order.
func (s *SQLiteStore) ListOperations(ctx context.Context, workspaceID string, limit, offset int) ([]*ignition.Operation, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT workspace_id, operation, status, result, timestamp
		FROM operations
		WHERE workspace_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []*ignition.Operation
	for rows.Next() {
		var (
			op     ignition.Operation
			result sql.NullString
		)
		if err := rows.Scan(&op.WorkspaceID, &op.Name, &op.Status, &result, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if result.Valid {
			if err := json.Unmarshal([]byte(result.String), &op.Result); err != nil {
				return nil, fmt.Errorf("failed to decode operation result: %w", err)
			}
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// PutCredential stores an encrypted credential record.
func (s *SQLiteStore) PutCredential(ctx context.Context, rec *vault.Record) error {
	query := `
		INSERT INTO credentials (id, workspace_id, type, name, ciphertext, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			fingerprint = excluded.fingerprint
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.WorkspaceID, rec.Type, rec.Name,
		rec.Ciphertext, rec.Fingerprint, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to put credential: %w", err)
	}
	return nil
}

// GetCredential retrieves an encrypted credential record by id.
func (s *SQLiteStore) GetCredential(ctx context.Context, id string) (*vault.Record, error) {
	query := `
		SELECT id, workspace_id, type, name, ciphertext, fingerprint, created_at
		FROM credentials
		WHERE id = ?
	`
	rec := &vault.Record{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.WorkspaceID, &rec.Type, &rec.Name,
		&rec.Ciphertext, &rec.Fingerprint, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vault.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return rec, nil
}

// DeleteCredential removes a credential record.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return vault.ErrRecordNotFound
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func encodeStringList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func decodeStringList(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
