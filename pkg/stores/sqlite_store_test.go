package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/vault"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testState() *ignition.State {
	now := time.Now().UTC().Truncate(time.Second)
	return &ignition.State{
		WorkspaceID: "ws-1",
		Status:      ignition.StatusPending,
		CurrentStep: 0,
		TotalSteps:  ignition.TotalSteps,
		RequestedBy: "ops@example.com",
		Region:      "nyc3",
		DropletSize: "s-1vcpu-2gb",
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	require.Error(t, err)
}

func TestGetIgnitionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetIgnition(context.Background(), "missing")
	require.ErrorIs(t, err, ignition.ErrNotFound)
}

func TestSaveAndGetIgnition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := testState()
	require.NoError(t, store.SaveIgnition(ctx, st))

	got, err := store.GetIgnition(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, st.WorkspaceID, got.WorkspaceID)
	assert.Equal(t, ignition.StatusPending, got.Status)
	assert.Equal(t, ignition.TotalSteps, got.TotalSteps)
	assert.Empty(t, got.PartitionName)
	assert.Nil(t, got.WorkflowIDs)
}

func TestSaveIgnitionUpsertsByWorkspace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := testState()
	require.NoError(t, store.SaveIgnition(ctx, st))

	st.Status = ignition.StatusActive
	st.CurrentStep = ignition.TotalSteps
	st.PartitionName = "ws_acme"
	st.DropletID = "101"
	st.DropletIP = "10.0.0.5"
	st.WorkflowIDs = []string{"wf-1", "wf-2"}
	st.CredentialIDs = []string{"cred-1"}
	require.NoError(t, store.SaveIgnition(ctx, st))

	got, err := store.GetIgnition(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, ignition.StatusActive, got.Status)
	assert.Equal(t, ignition.TotalSteps, got.CurrentStep)
	assert.Equal(t, "ws_acme", got.PartitionName)
	assert.Equal(t, []string{"wf-1", "wf-2"}, got.WorkflowIDs)
	assert.Equal(t, []string{"cred-1"}, got.CredentialIDs)

	states, err := store.ListIgnitions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestSaveIgnitionPersistsFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := testState()
	st.Status = ignition.StatusFailed
	st.Error = "droplet quota exceeded"
	st.FailedStep = "provision_droplet"
	require.NoError(t, store.SaveIgnition(ctx, st))

	got, err := store.GetIgnition(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, ignition.StatusFailed, got.Status)
	assert.Equal(t, "droplet quota exceeded", got.Error)
	assert.Equal(t, "provision_droplet", got.FailedStep)
}

func TestOperationsAppendOnlyAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	entries := []struct {
		name   string
		status ignition.OperationStatus
	}{
		{"create_partition", ignition.OperationStarted},
		{"create_partition", ignition.OperationCompleted},
		{"store_credentials", ignition.OperationStarted},
		{"store_credentials", ignition.OperationFailed},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendOperation(ctx, &ignition.Operation{
			WorkspaceID: "ws-1",
			Name:        e.name,
			Status:      e.status,
			Timestamp:   now,
		}))
	}
	require.NoError(t, store.AppendOperation(ctx, &ignition.Operation{
		WorkspaceID: "ws-other",
		Name:        "create_partition",
		Status:      ignition.OperationStarted,
		Timestamp:   now,
	}))

	ops, err := store.ListOperations(ctx, "ws-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, ops, 4)
	for i, e := range entries {
		assert.Equal(t, e.name, ops[i].Name)
		assert.Equal(t, e.status, ops[i].Status)
	}
}

func TestOperationResultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendOperation(ctx, &ignition.Operation{
		WorkspaceID: "ws-1",
		Name:        "provision_droplet",
		Status:      ignition.OperationFailed,
		Result:      map[string]any{"error": "quota exceeded"},
		Timestamp:   time.Now().UTC(),
	}))

	ops, err := store.ListOperations(ctx, "ws-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, map[string]any{"error": "quota exceeded"}, ops[0].Result)
}

func TestCredentialRecordLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &vault.Record{
		ID:          "cred-1",
		WorkspaceID: "ws-1",
		Type:        "postgres",
		Name:        "Reporting DB",
		Ciphertext:  []byte{0x01, 0x02, 0x03},
		Fingerprint: "deadbeefdeadbeef",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PutCredential(ctx, rec))

	got, err := store.GetCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, rec.WorkspaceID, got.WorkspaceID)
	assert.Equal(t, rec.Ciphertext, got.Ciphertext)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)

	require.NoError(t, store.DeleteCredential(ctx, "cred-1"))

	_, err = store.GetCredential(ctx, "cred-1")
	require.ErrorIs(t, err, vault.ErrRecordNotFound)
	require.ErrorIs(t, store.DeleteCredential(ctx, "cred-1"), vault.ErrRecordNotFound)
}

func TestVaultOverSQLiteBackend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := vault.New("0123456789abcdef0123456789abcdef", store)
	require.NoError(t, err)

	id, err := v.Store(ctx, "ws-1", ignition.CredentialSpec{
		Type: "postgres",
		Name: "Reporting DB",
		Data: []byte(`{"password":"secret"}`),
	})
	require.NoError(t, err)

	plaintext, err := v.Retrieve(ctx, "ws-1", id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"secret"}`, string(plaintext))

	require.NoError(t, v.Delete(ctx, id))
	require.NoError(t, v.Delete(ctx, id))
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}
