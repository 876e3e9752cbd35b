package vault

import (
	"context"
	"sync"
	"time"
)

// Record is one encrypted credential at rest. Ciphertext is the random
// nonce followed by the AEAD-sealed payload; the plaintext never touches
// the backend.
type Record struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Ciphertext  []byte    `json:"-"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Backend persists encrypted credential records. Get returns ErrRecordNotFound
// for unknown ids; Delete of an unknown id also returns ErrRecordNotFound,
// and the Vault treats that as success.
type Backend interface {
	PutCredential(ctx context.Context, rec *Record) error
	GetCredential(ctx context.Context, id string) (*Record, error)
	DeleteCredential(ctx context.Context, id string) error
}

// MemoryBackend is an in-memory Backend for tests and ephemeral use.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*Record)}
}

// PutCredential stores a copy of the record.
func (m *MemoryBackend) PutCredential(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Ciphertext = append([]byte(nil), rec.Ciphertext...)
	m.records[rec.ID] = &cp
	return nil
}

// GetCredential returns a copy of the stored record.
func (m *MemoryBackend) GetCredential(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	cp.Ciphertext = append([]byte(nil), rec.Ciphertext...)
	return &cp, nil
}

// DeleteCredential removes the record.
func (m *MemoryBackend) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}
