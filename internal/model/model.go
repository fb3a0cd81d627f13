// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the core data structures shared across Ledgerlock:
// ledger events, credential requests, approval signatures, token claims and
// vault secrets. These types carry no behavior beyond validation and
// formatting helpers; all mutation happens in the owning packages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// GenesisHash is the all-zero sentinel the first event of a day partition
// links to. A fresh chain starts here after every day rollover.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEvent is one immutable entry in the append-only ledger. Events are
// created only by the ledger's append path and are never updated or deleted
// (WORM). Timestamp is kept as an RFC 3339 string so the canonical
// serialization used for hashing survives a storage round trip bit-for-bit.
type AuditEvent struct {
	TxID         string         `json:"tx_id"`
	ResourceID   string         `json:"resource_id"`
	ActorID      string         `json:"actor_id"`
	ContentHash  string         `json:"content_hash"`
	Timestamp    string         `json:"timestamp"`
	PreviousHash string         `json:"previous_hash"`
	EventPayload map[string]any `json:"event_payload"`
}

// Day returns the UTC day partition ("2006-01-02") the event belongs to,
// derived from its timestamp. An unparseable timestamp yields an empty day;
// callers treat that as a verification failure, not a panic.
func (e AuditEvent) Day() string {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// EventKind is the closed set of event types the recorder accepts. Using a
// typed enum instead of free-form strings lets transition code switch
// exhaustively and rejects unknown kinds at the API boundary.
type EventKind string

const (
	EventRequest             EventKind = "REQUEST"
	EventCredentialApproved  EventKind = "CREDENTIAL_APPROVED"
	EventCredentialRetrieved EventKind = "CREDENTIAL_RETRIEVED"
	EventCredentialDenied    EventKind = "CREDENTIAL_DENIED"
	EventCredentialCancelled EventKind = "CREDENTIAL_CANCELLED"
	EventCredentialExpired   EventKind = "CREDENTIAL_EXPIRED"
	EventReportFinalized     EventKind = "REPORT_FINALIZED"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventRequest, EventCredentialApproved, EventCredentialRetrieved,
		EventCredentialDenied, EventCredentialCancelled, EventCredentialExpired,
		EventReportFinalized:
		return true
	}
	return false
}

// Risk classifies an event kind into a risk category for operator displays.
// Returns one of: "high", "medium", "low", "info".
func (k EventKind) Risk() string {
	switch k {
	case EventCredentialRetrieved, EventCredentialDenied:
		return "high"
	case EventCredentialApproved, EventCredentialExpired, EventCredentialCancelled:
		return "medium"
	case EventRequest, EventReportFinalized:
		return "low"
	default:
		return "info"
	}
}

// RequestStatus is the state of a credential request in its lifecycle.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRetrieved RequestStatus = "RETRIEVED"
	StatusExpired   RequestStatus = "EXPIRED"
	StatusDenied    RequestStatus = "DENIED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusRetrieved, StatusExpired, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a transition from s to next is permitted.
// The only legal edges are PENDING -> {APPROVED, DENIED, CANCELLED, EXPIRED}
// and APPROVED -> {RETRIEVED, EXPIRED}.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusDenied ||
			next == StatusCancelled || next == StatusExpired
	case StatusApproved:
		return next == StatusRetrieved || next == StatusExpired
	}
	return false
}

// Target identifies the vault and path a credential request wants unlocked.
type Target struct {
	Vault string `json:"vault"`
	Path  string `json:"path"`
}

// String returns the vault:path representation.
func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Vault, t.Path)
}

// Stamp is the proof receipt returned after an event lands in the ledger.
type Stamp struct {
	LedgerTxID  string `json:"ledger_tx_id"`
	Timestamp   string `json:"timestamp"`
	ContentHash string `json:"content_hash"`
}

// CredentialRequest tracks an emergency access request from creation through
// approval, retrieval or expiry. MerkleProof accumulates one stamp per
// lifecycle event so the full approval chain stays auditable afterwards.
type CredentialRequest struct {
	ReqID          string            `json:"req_id"`
	RequesterID    string            `json:"requester_id"`
	Reason         string            `json:"reason"`
	Target         Target            `json:"target"`
	PatientContext map[string]string `json:"patient_context,omitempty"`
	Status         RequestStatus     `json:"status"`
	CreatedTS      time.Time         `json:"created_ts"`
	ExpiresTS      time.Time         `json:"expires_ts"`
	MerkleProof    []Stamp           `json:"merkle_proof"`
}

// ApprovalSignature is an offline approval produced by an owner's private
// key over "req_id | approved_ts". Possession of a valid, unexpired
// signature is sufficient to authorize token issuance; the private key never
// contacts the server.
type ApprovalSignature struct {
	ReqID      string    `json:"req_id"`
	ApproverID string    `json:"approver_id"`
	ApprovedTS time.Time `json:"approved_ts"`
	Signature  string    `json:"signature"` // base64 ed25519 signature
	TTLSeconds int       `json:"ttl_seconds"`
}

// TokenClaims are the fields sealed inside an issued token.
type TokenClaims struct {
	ReqID string `json:"req_id"`
	Vault string `json:"vault"`
	Path  string `json:"path"`
	ExpTS int64  `json:"exp_ts"` // unix seconds
	Nonce string `json:"nonce"`
}

// VaultSecret is an encrypted-at-rest secret keyed by vault and path.
type VaultSecret struct {
	Vault      string `json:"vault"`
	Path       string `json:"path"`
	Ciphertext []byte `json:"ciphertext"`
	OwnerID    string `json:"owner_id"`
}

// FormatTxID renders a sequence number in the zero-padded tx-%08d form.
func FormatTxID(seq int) string {
	return fmt.Sprintf("tx-%08d", seq)
}

// ParseTxID extracts the sequence number from a tx-%08d identifier.
func ParseTxID(txID string) (int, error) {
	if !strings.HasPrefix(txID, "tx-") {
		return 0, fmt.Errorf("malformed tx id: %q", txID)
	}
	var seq int
	if _, err := fmt.Sscanf(txID, "tx-%08d", &seq); err != nil {
		return 0, fmt.Errorf("malformed tx id: %q", txID)
	}
	return seq, nil
}
