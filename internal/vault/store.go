// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package vault

import (
	"context"
	"sync"

	"github.com/toeirei/ledgerlock/internal/model"
)

// SecretStore persists encrypted secrets keyed by vault and path. Plaintext
// never reaches the store. internal/db provides the bun-backed
// implementation.
type SecretStore interface {
	SaveSecret(ctx context.Context, secret model.VaultSecret) error
	GetSecret(ctx context.Context, vault, path string) (*model.VaultSecret, error)
	ListPaths(ctx context.Context, vault string) ([]string, error)
}

// MemorySecretStore is an in-memory SecretStore for tests and
// single-process use.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]model.VaultSecret
}

// NewMemorySecretStore returns an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]model.VaultSecret)}
}

func storeKey(vault, path string) string { return vault + "\x00" + path }

func (m *MemorySecretStore) SaveSecret(ctx context.Context, secret model.VaultSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[storeKey(secret.Vault, secret.Path)] = secret
	return nil
}

func (m *MemorySecretStore) GetSecret(ctx context.Context, vault, path string) (*model.VaultSecret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[storeKey(vault, path)]
	if !ok {
		return nil, nil
	}
	return &secret, nil
}

func (m *MemorySecretStore) ListPaths(ctx context.Context, vault string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for _, secret := range m.secrets {
		if secret.Vault == vault {
			paths = append(paths, secret.Path)
		}
	}
	return paths, nil
}
