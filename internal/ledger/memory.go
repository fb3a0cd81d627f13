// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"context"
	"sync"

	"github.com/toeirei/ledgerlock/internal/model"
)

// MemoryStore is an in-memory EventStore for tests and the built-in
// self-test. It loses history on restart; durable deployments use the
// bun-backed store from internal/db.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.AuditEvent
	roots  map[string][]dayRoot // day -> versions, latest last
}

type dayRoot struct {
	root  string
	total int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roots: make(map[string][]dayRoot)}
}

// AppendEvent stores the event. The slice is only ever appended to.
func (m *MemoryStore) AppendEvent(ctx context.Context, ev model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// EventsForDay returns the day's events in append order.
func (m *MemoryStore) EventsForDay(ctx context.Context, day string) ([]model.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AuditEvent
	for _, ev := range m.events {
		if ev.Day() == day {
			out = append(out, ev)
		}
	}
	return out, nil
}

// EventByTxID returns the event with the given tx id, or nil.
func (m *MemoryStore) EventByTxID(ctx context.Context, txID string) (*model.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.events {
		if m.events[i].TxID == txID {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, nil
}

// LastEvent returns the most recently appended event, or nil when empty.
func (m *MemoryStore) LastEvent(ctx context.Context) (*model.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.events) == 0 {
		return nil, nil
	}
	ev := m.events[len(m.events)-1]
	return &ev, nil
}

// AllEvents returns every event in append order.
func (m *MemoryStore) AllEvents(ctx context.Context) ([]model.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AuditEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

// CountEvents returns the number of stored events.
func (m *MemoryStore) CountEvents(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

// SaveDayRoot appends a new root version for the day.
func (m *MemoryStore) SaveDayRoot(ctx context.Context, day, rootHash string, totalEvents int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[day] = append(m.roots[day], dayRoot{root: rootHash, total: totalEvents})
	return nil
}

// LatestDayRoot returns the most recent root for the day, or "".
func (m *MemoryStore) LatestDayRoot(ctx context.Context, day string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.roots[day]
	if len(versions) == 0 {
		return "", nil
	}
	return versions[len(versions)-1].root, nil
}

// Days returns the distinct day partitions in chronological order.
func (m *MemoryStore) Days(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var days []string
	seen := make(map[string]bool)
	for _, ev := range m.events {
		d := ev.Day()
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, nil
}

// TamperEvent overwrites a stored event's payload in place, bypassing the
// append-only contract. Only for tamper-detection tests.
func (m *MemoryStore) TamperEvent(txID string, payload map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].TxID == txID {
			m.events[i].EventPayload = payload
			return true
		}
	}
	return false
}
