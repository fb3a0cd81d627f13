// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package request tracks emergency credential requests through their state
// machine. The manager is the single authoritative owner of the request
// map: creation and status updates go through it, every transition is
// stamped into the ledger, and SLA expiry is evaluated lazily on read so no
// background timers are needed.
package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toeirei/ledgerlock/internal/model"
	"github.com/toeirei/ledgerlock/internal/recorder"
)

// DefaultSLASeconds is the request expiry window when the caller does not
// specify one.
const DefaultSLASeconds = 120

// ErrNotFound is returned when a request id is unknown.
var ErrNotFound = errors.New("credential request not found")

// ErrInvalidTransition is returned for a status change the state machine
// does not permit. This is an integration error, not a security decision.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store persists credential requests. internal/db provides the bun-backed
// implementation; MemoryStore below covers tests and single-process use.
type Store interface {
	SaveRequest(ctx context.Context, req model.CredentialRequest) error
	GetRequest(ctx context.Context, reqID string) (*model.CredentialRequest, error)
	UpdateRequest(ctx context.Context, req model.CredentialRequest) error
	ListRequests(ctx context.Context) ([]model.CredentialRequest, error)
}

// Manager owns the credential request lifecycle.
type Manager struct {
	mu    sync.Mutex // serializes read-check-update transitions
	store Store
	rec   *recorder.Recorder
	now   func() time.Time
}

// NewManager returns a manager over the given store and recorder.
func NewManager(store Store, rec *recorder.Recorder) *Manager {
	return &Manager{store: store, rec: rec, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// newReqID builds a globally unique request id without coordination:
// a second-resolution timestamp plus a random suffix.
func (m *Manager) newReqID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("req-%s-%s", now.UTC().Format("20060102T150405Z"), suffix)
}

// CreateRequest validates inputs, stamps a REQUEST event and stores the new
// request in PENDING state. slaSeconds <= 0 selects the default window.
func (m *Manager) CreateRequest(ctx context.Context, requesterID, reason string, target model.Target, patientContext map[string]string, slaSeconds int) (*model.CredentialRequest, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("requester id cannot be empty")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("reason cannot be empty")
	}
	if strings.TrimSpace(target.Vault) == "" || strings.TrimSpace(target.Path) == "" {
		return nil, fmt.Errorf("target vault and path cannot be empty")
	}
	for k, v := range patientContext {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("patient context entries cannot be empty")
		}
	}
	if slaSeconds <= 0 {
		slaSeconds = DefaultSLASeconds
	}

	now := m.now().UTC()
	req := model.CredentialRequest{
		ReqID:          m.newReqID(now),
		RequesterID:    requesterID,
		Reason:         reason,
		Target:         target,
		PatientContext: patientContext,
		Status:         model.StatusPending,
		CreatedTS:      now,
		ExpiresTS:      now.Add(time.Duration(slaSeconds) * time.Second),
	}

	stamp, err := m.rec.RecordCredentialEvent(ctx, model.EventRequest, req.ReqID, requesterID, map[string]string{
		"reason": reason,
		"vault":  target.Vault,
		"path":   target.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("stamp request event: %w", err)
	}
	req.MerkleProof = []model.Stamp{*stamp}

	if err := m.store.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}
	return &req, nil
}

// GetRequest returns the request, lazily expiring a stale PENDING entry
// first. A request past its SLA is reported as EXPIRED without any explicit
// transition call.
func (m *Manager) GetRequest(ctx context.Context, reqID string) (*model.CredentialRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx, reqID)
}

func (m *Manager) getLocked(ctx context.Context, reqID string) (*model.CredentialRequest, error) {
	req, err := m.store.GetRequest(ctx, reqID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if req.Status == model.StatusPending && m.now().UTC().After(req.ExpiresTS) {
		return m.transitionLocked(ctx, req, model.StatusExpired, map[string]string{"reason": "sla_elapsed"})
	}
	return req, nil
}

// UpdateRequestStatus is the sole mutator of request state. It enforces the
// transition table, stamps the matching ledger event, and appends the proof
// to the request's accumulated history.
func (m *Manager) UpdateRequestStatus(ctx context.Context, reqID string, newStatus model.RequestStatus, metadata map[string]string) (*model.CredentialRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.getLocked(ctx, reqID)
	if err != nil {
		return nil, err
	}
	if req.Status == newStatus {
		return req, nil
	}
	if !req.Status.CanTransition(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, newStatus)
	}
	return m.transitionLocked(ctx, req, newStatus, metadata)
}

// transitionLocked stamps and persists a permitted transition. Callers hold
// the manager mutex and have already validated the edge.
func (m *Manager) transitionLocked(ctx context.Context, req *model.CredentialRequest, newStatus model.RequestStatus, metadata map[string]string) (*model.CredentialRequest, error) {
	actor := req.RequesterID
	if metadata != nil && metadata["actor_id"] != "" {
		actor = metadata["actor_id"]
	}
	meta := map[string]string{"from": string(req.Status), "to": string(newStatus)}
	for k, v := range metadata {
		meta[k] = v
	}

	stamp, err := m.rec.RecordCredentialEvent(ctx, eventKindFor(newStatus), req.ReqID, actor, meta)
	if err != nil {
		return nil, fmt.Errorf("stamp transition event: %w", err)
	}

	req.Status = newStatus
	req.MerkleProof = append(req.MerkleProof, *stamp)
	if err := m.store.UpdateRequest(ctx, *req); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	return req, nil
}

// eventKindFor maps a target status to its ledger event kind.
func eventKindFor(s model.RequestStatus) model.EventKind {
	switch s {
	case model.StatusApproved:
		return model.EventCredentialApproved
	case model.StatusRetrieved:
		return model.EventCredentialRetrieved
	case model.StatusDenied:
		return model.EventCredentialDenied
	case model.StatusCancelled:
		return model.EventCredentialCancelled
	case model.StatusExpired:
		return model.EventCredentialExpired
	default:
		return model.EventRequest
	}
}

// ListPendingRequests returns the requests still PENDING after lazy expiry.
func (m *Manager) ListPendingRequests(ctx context.Context) ([]model.CredentialRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	var pending []model.CredentialRequest
	for _, req := range all {
		if req.Status != model.StatusPending {
			continue
		}
		cur, err := m.getLocked(ctx, req.ReqID) // applies lazy expiry
		if err != nil {
			return nil, err
		}
		if cur.Status == model.StatusPending {
			pending = append(pending, *cur)
		}
	}
	return pending, nil
}
