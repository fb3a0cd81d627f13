// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package token

import (
	"context"
	"sync"
)

// NonceStore records consumed token nonces. Consume must be atomic
// check-and-set: for the same nonce it returns true exactly once no matter
// how many callers race. internal/db backs this with a unique-index insert;
// MemoryStore below covers tests and single-process use.
type NonceStore interface {
	// Consume marks the nonce used. Returns true if this call consumed it,
	// false if it had been consumed before.
	Consume(ctx context.Context, nonce string) (bool, error)
	// Seen reports whether the nonce has already been consumed.
	Seen(ctx context.Context, nonce string) (bool, error)
}

// MemoryNonceStore is an in-memory NonceStore.
type MemoryNonceStore struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewMemoryNonceStore returns an empty in-memory nonce store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{used: make(map[string]struct{})}
}

func (m *MemoryNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.used[nonce]; ok {
		return false, nil
	}
	m.used[nonce] = struct{}{}
	return true, nil
}

func (m *MemoryNonceStore) Seen(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[nonce]
	return ok, nil
}
