// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package request

import (
	"context"
	"sort"
	"sync"

	"github.com/toeirei/ledgerlock/internal/model"
)

// MemoryStore is an in-memory request store for tests and single-process
// use. Pending-request state does not survive a restart; durable
// deployments use the bun-backed store from internal/db.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]model.CredentialRequest
}

// NewMemoryStore returns an empty in-memory request store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]model.CredentialRequest)}
}

// SaveRequest stores a new request.
func (m *MemoryStore) SaveRequest(ctx context.Context, req model.CredentialRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ReqID] = req
	return nil
}

// GetRequest returns a copy of the request, or nil when unknown.
func (m *MemoryStore) GetRequest(ctx context.Context, reqID string) (*model.CredentialRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[reqID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

// UpdateRequest replaces the stored request.
func (m *MemoryStore) UpdateRequest(ctx context.Context, req model.CredentialRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ReqID] = req
	return nil
}

// ListRequests returns all requests ordered by creation time.
func (m *MemoryStore) ListRequests(ctx context.Context) ([]model.CredentialRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CredentialRequest, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS.Before(out[j].CreatedTS) })
	return out, nil
}
