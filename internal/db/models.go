// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/ledgerlock/internal/model"
)

// AuditEventModel maps the audit_events table for Bun queries. The table is
// insert-only; nothing in this package updates or deletes rows.
type AuditEventModel struct {
	bun.BaseModel `bun:"table:audit_events"`
	ID            int    `bun:"id,pk,autoincrement"`
	TxID          string `bun:"tx_id"`
	ResourceID    string `bun:"resource_id"`
	ActorID       string `bun:"actor_id"`
	ContentHash   string `bun:"content_hash"`
	Timestamp     string `bun:"timestamp"`
	PreviousHash  string `bun:"previous_hash"`
	Day           string `bun:"day"`
	EventPayload  string `bun:"event_payload"`
}

// DayRootModel maps the day_roots table. Roots are versioned: each append
// inserts a new row, and the latest row per day is authoritative.
type DayRootModel struct {
	bun.BaseModel `bun:"table:day_roots"`
	ID            int       `bun:"id,pk,autoincrement"`
	Day           string    `bun:"day"`
	RootHash      string    `bun:"root_hash"`
	TotalEvents   int       `bun:"total_events"`
	ComputedAt    time.Time `bun:"computed_at"`
}

// CredentialRequestModel maps the credential_requests table.
type CredentialRequestModel struct {
	bun.BaseModel  `bun:"table:credential_requests"`
	ReqID          string    `bun:"req_id,pk"`
	RequesterID    string    `bun:"requester_id"`
	Reason         string    `bun:"reason"`
	Vault          string    `bun:"vault"`
	Path           string    `bun:"path"`
	PatientContext string    `bun:"patient_context"`
	Status         string    `bun:"status"`
	CreatedTS      time.Time `bun:"created_ts"`
	ExpiresTS      time.Time `bun:"expires_ts"`
	MerkleProof    string    `bun:"merkle_proof"`
}

// ConsumedNonceModel maps the consumed_nonces table. The primary key on the
// nonce is what makes token redemption atomic: the second insert of the same
// nonce fails with a constraint violation.
type ConsumedNonceModel struct {
	bun.BaseModel `bun:"table:consumed_nonces"`
	Nonce         string    `bun:"nonce,pk"`
	ConsumedAt    time.Time `bun:"consumed_at"`
}

// VaultSecretModel maps the vault_secrets table.
type VaultSecretModel struct {
	bun.BaseModel `bun:"table:vault_secrets"`
	ID            int    `bun:"id,pk,autoincrement"`
	Vault         string `bun:"vault"`
	Path          string `bun:"path"`
	Ciphertext    []byte `bun:"ciphertext"`
	OwnerID       string `bun:"owner_id"`
}

func auditEventToModel(m AuditEventModel) (model.AuditEvent, error) {
	ev := model.AuditEvent{
		TxID:         m.TxID,
		ResourceID:   m.ResourceID,
		ActorID:      m.ActorID,
		ContentHash:  m.ContentHash,
		Timestamp:    m.Timestamp,
		PreviousHash: m.PreviousHash,
	}
	if m.EventPayload != "" {
		// Decode with UseNumber so numbers survive the storage round trip in
		// the same form the canonical hasher saw at append time.
		dec := json.NewDecoder(bytes.NewReader([]byte(m.EventPayload)))
		dec.UseNumber()
		if err := dec.Decode(&ev.EventPayload); err != nil {
			return model.AuditEvent{}, fmt.Errorf("decode payload of %s: %w", m.TxID, err)
		}
	}
	return ev, nil
}

func auditEventFromModel(ev model.AuditEvent) (AuditEventModel, error) {
	payload, err := json.Marshal(ev.EventPayload)
	if err != nil {
		return AuditEventModel{}, fmt.Errorf("encode payload of %s: %w", ev.TxID, err)
	}
	return AuditEventModel{
		TxID:         ev.TxID,
		ResourceID:   ev.ResourceID,
		ActorID:      ev.ActorID,
		ContentHash:  ev.ContentHash,
		Timestamp:    ev.Timestamp,
		PreviousHash: ev.PreviousHash,
		Day:          ev.Day(),
		EventPayload: string(payload),
	}, nil
}

func requestToModel(m CredentialRequestModel) (model.CredentialRequest, error) {
	req := model.CredentialRequest{
		ReqID:       m.ReqID,
		RequesterID: m.RequesterID,
		Reason:      m.Reason,
		Target:      model.Target{Vault: m.Vault, Path: m.Path},
		Status:      model.RequestStatus(m.Status),
		CreatedTS:   m.CreatedTS.UTC(),
		ExpiresTS:   m.ExpiresTS.UTC(),
	}
	if m.PatientContext != "" {
		if err := json.Unmarshal([]byte(m.PatientContext), &req.PatientContext); err != nil {
			return model.CredentialRequest{}, fmt.Errorf("decode patient context of %s: %w", m.ReqID, err)
		}
	}
	if m.MerkleProof != "" {
		if err := json.Unmarshal([]byte(m.MerkleProof), &req.MerkleProof); err != nil {
			return model.CredentialRequest{}, fmt.Errorf("decode proof history of %s: %w", m.ReqID, err)
		}
	}
	return req, nil
}

func requestFromModel(req model.CredentialRequest) (CredentialRequestModel, error) {
	pc, err := json.Marshal(req.PatientContext)
	if err != nil {
		return CredentialRequestModel{}, fmt.Errorf("encode patient context of %s: %w", req.ReqID, err)
	}
	proofs, err := json.Marshal(req.MerkleProof)
	if err != nil {
		return CredentialRequestModel{}, fmt.Errorf("encode proof history of %s: %w", req.ReqID, err)
	}
	return CredentialRequestModel{
		ReqID:          req.ReqID,
		RequesterID:    req.RequesterID,
		Reason:         req.Reason,
		Vault:          req.Target.Vault,
		Path:           req.Target.Path,
		PatientContext: string(pc),
		Status:         string(req.Status),
		CreatedTS:      req.CreatedTS.UTC(),
		ExpiresTS:      req.ExpiresTS.UTC(),
		MerkleProof:    string(proofs),
	}, nil
}
