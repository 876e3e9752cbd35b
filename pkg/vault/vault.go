package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/hangarhq/hangar/pkg/ignition"
)

// MinMasterKeyLen is the minimum length of the service master key.
const MinMasterKeyLen = 32

// keyDerivationPrefix is the HKDF info prefix. The workspace id is
// appended, giving each workspace an independent encryption key.
const keyDerivationPrefix = "hangar.vault.v1."

// ErrRecordNotFound is returned by backends for unknown credential ids.
var ErrRecordNotFound = errors.New("credential record not found")

// Vault encrypts credentials with per-workspace derived keys and persists
// them through a Backend. It implements ignition.CredentialVault.
type Vault struct {
	masterKey []byte
	backend   Backend
}

// New creates a vault. The master key must be at least MinMasterKeyLen
// bytes; a short key is a deployment mistake and is rejected outright.
func New(masterKey string, backend Backend) (*Vault, error) {
	if len(masterKey) < MinMasterKeyLen {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d",
			MinMasterKeyLen, len(masterKey))
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &Vault{
		masterKey: []byte(masterKey),
		backend:   backend,
	}, nil
}

// deriveKey derives the workspace-scoped AEAD key from the master key.
func (v *Vault) deriveKey(workspaceID string) ([]byte, error) {
	info := []byte(keyDerivationPrefix + workspaceID)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, v.masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("deriving workspace key: %w", err)
	}
	return key, nil
}

// aad binds a ciphertext to the workspace and credential it was sealed
// for, so a record copied between rows fails authentication.
func aad(workspaceID, credentialID string) []byte {
	return []byte(workspaceID + "\x00" + credentialID)
}

// Store encrypts the credential payload under the workspace's derived key
// and persists it, returning the new credential id.
func (v *Vault) Store(ctx context.Context, workspaceID string, cred ignition.CredentialSpec) (string, error) {
	key, err := v.deriveKey(workspaceID)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	id := uuid.NewString()

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, cred.Data, aad(workspaceID, id))
	ciphertext := append(nonce, sealed...)

	rec := &Record{
		ID:          id,
		WorkspaceID: workspaceID,
		Type:        cred.Type,
		Name:        cred.Name,
		Ciphertext:  ciphertext,
		Fingerprint: Fingerprint(cred.Data),
		CreatedAt:   time.Now().UTC(),
	}
	if err := v.backend.PutCredential(ctx, rec); err != nil {
		return "", fmt.Errorf("persisting credential: %w", err)
	}
	return id, nil
}

// Retrieve decrypts a stored credential. The workspace id must match the
// one the credential was sealed for; a mismatch fails authentication.
func (v *Vault) Retrieve(ctx context.Context, workspaceID, id string) ([]byte, error) {
	rec, err := v.backend.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}

	key, err := v.deriveKey(workspaceID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	if len(rec.Ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("credential %s: ciphertext truncated", id)
	}
	nonce := rec.Ciphertext[:aead.NonceSize()]
	sealed := rec.Ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, aad(workspaceID, id))
	if err != nil {
		return nil, fmt.Errorf("credential %s: decryption failed: %w", id, err)
	}
	return plaintext, nil
}

// Delete removes a stored credential. Deleting an id that no longer
// exists succeeds, so compensating actions can run repeatedly.
func (v *Vault) Delete(ctx context.Context, id string) error {
	err := v.backend.DeleteCredential(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	return err
}
