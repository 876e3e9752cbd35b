package vault

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/ignition"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T) (*Vault, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	v, err := New(testMasterKey, backend)
	require.NoError(t, err)
	return v, backend
}

func testCred() ignition.CredentialSpec {
	return ignition.CredentialSpec{
		Type: "gmailOAuth2",
		Name: "Gmail",
		Data: json.RawMessage(`{"client_id":"abc","client_secret":"shh"}`),
	}
}

func TestNewRejectsShortMasterKey(t *testing.T) {
	_, err := New("too-short", NewMemoryBackend())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32")
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(testMasterKey, nil)
	require.Error(t, err)
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	plaintext, err := v.Retrieve(ctx, "ws-1", id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"client_id":"abc","client_secret":"shh"}`, string(plaintext))
}

func TestCiphertextNeverContainsPlaintext(t *testing.T) {
	v, backend := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	rec, err := backend.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, string(rec.Ciphertext), "client_secret")
	assert.NotContains(t, string(rec.Ciphertext), "shh")
}

func TestEncryptionIsNondeterministic(t *testing.T) {
	v, backend := newTestVault(t)
	ctx := context.Background()

	id1, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)
	id2, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	rec1, err := backend.GetCredential(ctx, id1)
	require.NoError(t, err)
	rec2, err := backend.GetCredential(ctx, id2)
	require.NoError(t, err)

	assert.NotEqual(t, rec1.Ciphertext, rec2.Ciphertext)
}

func TestCrossWorkspaceRetrievalFails(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	_, err = v.Retrieve(ctx, "ws-2", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestTamperedCiphertextFails(t *testing.T) {
	v, backend := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	rec, err := backend.GetCredential(ctx, id)
	require.NoError(t, err)
	rec.Ciphertext[len(rec.Ciphertext)-1] ^= 0xff
	require.NoError(t, backend.PutCredential(ctx, rec))

	_, err = v.Retrieve(ctx, "ws-1", id)
	require.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	require.NoError(t, v.Delete(ctx, id))
	require.NoError(t, v.Delete(ctx, id))
	require.NoError(t, v.Delete(ctx, "never-existed"))

	_, err = v.Retrieve(ctx, "ws-1", id)
	require.Error(t, err)
}

func TestRecordCarriesMetadataNotSecrets(t *testing.T) {
	v, backend := newTestVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", testCred())
	require.NoError(t, err)

	rec, err := backend.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", rec.WorkspaceID)
	assert.Equal(t, "gmailOAuth2", rec.Type)
	assert.Equal(t, "Gmail", rec.Name)
	assert.Len(t, rec.Fingerprint, 16)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestFingerprintIsStableAndOrderSensitive(t *testing.T) {
	a := Fingerprint([]byte(`{"user":"x","pass":"y"}`))
	b := Fingerprint([]byte(`{"user":"x","pass":"y"}`))
	c := Fingerprint([]byte(`{"pass":"y","user":"x"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	assert.Equal(t, strings.ToLower(a), a)
}
