// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package ledger implements the append-only, hash-chained event log with a
// per-day Merkle tree. Appends serialize through a single mutex so tx_id
// sequencing and chain linkage are never interleaved; verification is
// read-only and may run concurrently with appends at the store's isolation
// level.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/toeirei/ledgerlock/internal/canonical"
	"github.com/toeirei/ledgerlock/internal/merkle"
	"github.com/toeirei/ledgerlock/internal/model"
)

// EventStore is the durable backing for a ledger instance. Implementations
// must be append-only for events and day roots: no updates, no deletes.
// internal/db provides the bun-backed implementation; MemoryStore in this
// package covers tests and single-process use.
type EventStore interface {
	AppendEvent(ctx context.Context, ev model.AuditEvent) error
	EventsForDay(ctx context.Context, day string) ([]model.AuditEvent, error)
	EventByTxID(ctx context.Context, txID string) (*model.AuditEvent, error)
	LastEvent(ctx context.Context) (*model.AuditEvent, error)
	AllEvents(ctx context.Context) ([]model.AuditEvent, error)
	CountEvents(ctx context.Context) (int, error)
	SaveDayRoot(ctx context.Context, day, rootHash string, totalEvents int) error
	LatestDayRoot(ctx context.Context, day string) (string, error)
	Days(ctx context.Context) ([]string, error)
}

// Ledger is one tamper-evident event log. Construct it once at process
// start with New and pass it by reference; there is no package-level
// default instance.
type Ledger struct {
	mu    sync.Mutex
	store EventStore
	seq   int    // last issued sequence number
	day   string // day partition of the chain head
	prev  string // hash of the chain head event
	now   func() time.Time
}

// New loads the chain head from the store and returns a ready ledger.
func New(ctx context.Context, store EventStore) (*Ledger, error) {
	l := &Ledger{store: store, prev: model.GenesisHash, now: time.Now}
	count, err := store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	l.seq = count
	last, err := store.LastEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	if last != nil {
		l.day = last.Day()
		h, err := EventHash(*last)
		if err != nil {
			return nil, fmt.Errorf("hash chain head: %w", err)
		}
		l.prev = h
	}
	return l, nil
}

// SetClock overrides the time source. Intended for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// EventHash computes the hash of an event's canonical serialization. This is
// both the Merkle leaf hash and the value the next event's previous_hash
// links to.
func EventHash(ev model.AuditEvent) (string, error) {
	return canonical.Hash(ev)
}

// Append records a payload as a new event: content hash via canonical
// serialization, chained to the previous event, durably inserted, and the
// day's Merkle root rebuilt and persisted. A storage write failure here is
// fatal to the calling operation; an event lost at this point would break
// the audit guarantee.
func (l *Ledger) Append(ctx context.Context, resourceID, actorID string, payload map[string]any) (*model.AuditEvent, error) {
	contentHash, err := canonical.Hash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}
	return l.append(ctx, resourceID, actorID, contentHash, payload)
}

// AppendPrehashed records an event whose content hash was computed
// externally (the CLI append path). The payload carries the hash so the
// event body remains self-describing.
func (l *Ledger) AppendPrehashed(ctx context.Context, resourceID, actorID, contentHash string) (*model.AuditEvent, error) {
	return l.append(ctx, resourceID, actorID, contentHash, map[string]any{"content_hash": contentHash})
}

func (l *Ledger) append(ctx context.Context, resourceID, actorID, contentHash string, payload map[string]any) (*model.AuditEvent, error) {
	if strings.TrimSpace(resourceID) == "" || strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("resource and actor ids cannot be empty")
	}
	if contentHash == "" {
		return nil, fmt.Errorf("content hash cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	day := now.Format("2006-01-02")
	if day != l.day {
		// Day rollover: the previous day's root was finalized on its last
		// append; the new partition starts a fresh chain at the sentinel.
		l.day = day
		l.prev = model.GenesisHash
	}

	l.seq++
	ev := model.AuditEvent{
		TxID:         model.FormatTxID(l.seq),
		ResourceID:   resourceID,
		ActorID:      actorID,
		ContentHash:  contentHash,
		Timestamp:    now.Format(time.RFC3339Nano),
		PreviousHash: l.prev,
		EventPayload: payload,
	}

	if err := l.store.AppendEvent(ctx, ev); err != nil {
		l.seq-- // keep tx_id sequencing gapless
		return nil, fmt.Errorf("ledger append failed: %w", err)
	}

	// The event is durable: advance the chain head now, before the tree
	// rebuild. A root-persist failure below must not leave the next append
	// linking past this event.
	head, err := EventHash(ev)
	if err != nil {
		return nil, fmt.Errorf("hash appended event: %w", err)
	}
	l.prev = head

	events, err := l.store.EventsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("rebuild day tree: %w", err)
	}
	leaves := make([]string, len(events))
	for i, e := range events {
		h, err := EventHash(e)
		if err != nil {
			return nil, fmt.Errorf("hash event %s: %w", e.TxID, err)
		}
		leaves[i] = h
	}
	tree := merkle.Build(leaves)
	if err := l.store.SaveDayRoot(ctx, day, tree.Root(), len(leaves)); err != nil {
		return nil, fmt.Errorf("persist day root: %w", err)
	}
	return &ev, nil
}

// VerifyResult is the outcome of verifying a single event. Integrity
// failures are reported through Valid/Reason, not as errors; errors are
// reserved for unusable input or storage faults.
type VerifyResult struct {
	TxID   string             `json:"tx_id"`
	Valid  bool               `json:"valid"`
	Reason string             `json:"reason,omitempty"`
	Proof  []merkle.ProofStep `json:"proof_chain"`
	Root   string             `json:"root_hash,omitempty"`
}

// Verify recomputes the leaf hash of the stored event, replays its Merkle
// proof against the stored day root, and checks the hash-chain links to the
// neighboring events.
func (l *Ledger) Verify(ctx context.Context, txID string) (*VerifyResult, error) {
	ev, err := l.store.EventByTxID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("unknown tx id: %s", txID)
	}

	day := ev.Day()
	if day == "" {
		return &VerifyResult{TxID: txID, Reason: "unparseable event timestamp"}, nil
	}
	events, err := l.store.EventsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day partition: %w", err)
	}

	idx := -1
	leaves := make([]string, len(events))
	for i, e := range events {
		h, err := EventHash(e)
		if err != nil {
			return nil, fmt.Errorf("hash event %s: %w", e.TxID, err)
		}
		leaves[i] = h
		if e.TxID == txID {
			idx = i
		}
	}
	if idx == -1 {
		return &VerifyResult{TxID: txID, Reason: "event missing from its day partition"}, nil
	}

	// Hash-chain link to the prior event (or the genesis sentinel).
	wantPrev := model.GenesisHash
	if idx > 0 {
		wantPrev = leaves[idx-1]
	}
	if ev.PreviousHash != wantPrev {
		return &VerifyResult{TxID: txID, Reason: "previous_hash does not match prior event"}, nil
	}
	// And the forward link, when a successor exists.
	if idx+1 < len(events) && events[idx+1].PreviousHash != leaves[idx] {
		return &VerifyResult{TxID: txID, Reason: "successor event does not link to this event"}, nil
	}

	tree := merkle.Build(leaves)
	proof, err := tree.Proof(idx)
	if err != nil {
		return nil, fmt.Errorf("build proof: %w", err)
	}
	storedRoot, err := l.store.LatestDayRoot(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day root: %w", err)
	}
	if storedRoot == "" {
		return &VerifyResult{TxID: txID, Proof: proof, Reason: "no persisted root for day partition"}, nil
	}
	if !merkle.VerifyProof(leaves[idx], proof, storedRoot) {
		return &VerifyResult{TxID: txID, Proof: proof, Root: storedRoot, Reason: "merkle proof does not resolve to stored root"}, nil
	}

	return &VerifyResult{TxID: txID, Valid: true, Proof: proof, Root: storedRoot}, nil
}

// Event returns the stored event behind a tx id, or nil when unknown.
func (l *Ledger) Event(ctx context.Context, txID string) (*model.AuditEvent, error) {
	return l.store.EventByTxID(ctx, txID)
}

// RootHash returns the persisted Merkle root for the most recent day that
// has events, or "" for an empty ledger.
func (l *Ledger) RootHash(ctx context.Context) (string, error) {
	last, err := l.store.LastEvent(ctx)
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}
	return l.store.LatestDayRoot(ctx, last.Day())
}

// DayStat summarizes one day partition for the stats command.
type DayStat struct {
	Day    string `json:"day"`
	Events int    `json:"events"`
	Root   string `json:"root_hash"`
}

// Stats describes the ledger's current shape.
type Stats struct {
	TotalEntries int       `json:"total_entries"`
	LastTxID     string    `json:"last_tx_id,omitempty"`
	RootHash     string    `json:"root_hash,omitempty"`
	Days         []DayStat `json:"days"`
}

// Stat gathers per-day totals and the current root.
func (l *Ledger) Stat(ctx context.Context) (*Stats, error) {
	count, err := l.store.CountEvents(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{TotalEntries: count}
	last, err := l.store.LastEvent(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil {
		st.LastTxID = last.TxID
		st.RootHash, err = l.store.LatestDayRoot(ctx, last.Day())
		if err != nil {
			return nil, err
		}
	}
	days, err := l.store.Days(ctx)
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		events, err := l.store.EventsForDay(ctx, day)
		if err != nil {
			return nil, err
		}
		root, err := l.store.LatestDayRoot(ctx, day)
		if err != nil {
			return nil, err
		}
		st.Days = append(st.Days, DayStat{Day: day, Events: len(events), Root: root})
	}
	return st, nil
}

// List returns the most recent events, newest first, capped at limit
// (0 means no cap).
func (l *Ledger) List(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	events, err := l.store.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	// AllEvents is ordered oldest first; reverse into newest first.
	out := make([]model.AuditEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
