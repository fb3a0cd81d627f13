// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package recorder funnels structured payloads into the ledger and hands
// back proof receipts. It is the only path by which the report layer and
// the credential broker write audit events.
package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/toeirei/ledgerlock/internal/canonical"
	"github.com/toeirei/ledgerlock/internal/ledger"
	"github.com/toeirei/ledgerlock/internal/model"
)

// Recorder stamps events into a single ledger instance.
type Recorder struct {
	ledger *ledger.Ledger
}

// New returns a recorder bound to the given ledger.
func New(l *ledger.Ledger) *Recorder {
	return &Recorder{ledger: l}
}

// ContentHash computes the canonical content hash for an arbitrary
// structured payload. Reproducible across processes: same logical content,
// same hash, regardless of field insertion order.
func (r *Recorder) ContentHash(payload any) (string, error) {
	return canonical.Hash(payload)
}

// FinalizeReport hashes the report content and stamps a REPORT_FINALIZED
// event. The returned stamp carries the content hash, so later verification
// can detect any edit to the report body. Signature is optional.
func (r *Recorder) FinalizeReport(ctx context.Context, id string, content map[string]any, actor, signature string) (*model.Stamp, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("report id and actor cannot be empty")
	}
	if content == nil {
		return nil, fmt.Errorf("report content cannot be nil")
	}
	contentHash, err := canonical.Hash(content)
	if err != nil {
		return nil, fmt.Errorf("hash report content: %w", err)
	}
	payload := map[string]any{
		"event_type":   string(model.EventReportFinalized),
		"report_id":    id,
		"content_hash": contentHash,
	}
	if signature != "" {
		payload["signature"] = signature
	}
	ev, err := r.ledger.Append(ctx, id, actor, payload)
	if err != nil {
		return nil, err
	}
	return &model.Stamp{LedgerTxID: ev.TxID, Timestamp: ev.Timestamp, ContentHash: contentHash}, nil
}

// RecordCredentialEvent stamps a credential lifecycle event. The kind must
// be one of the closed EventKind set; anything else is an input error, not a
// security decision.
func (r *Recorder) RecordCredentialEvent(ctx context.Context, kind model.EventKind, reqID, actorID string, metadata map[string]string) (*model.Stamp, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown event kind: %q", kind)
	}
	if strings.TrimSpace(reqID) == "" || strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("request id and actor id cannot be empty")
	}
	payload := map[string]any{
		"event_type": string(kind),
		"req_id":     reqID,
	}
	if len(metadata) > 0 {
		meta := make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		payload["metadata"] = meta
	}
	ev, err := r.ledger.Append(ctx, reqID, actorID, payload)
	if err != nil {
		return nil, err
	}
	return &model.Stamp{LedgerTxID: ev.TxID, Timestamp: ev.Timestamp, ContentHash: ev.ContentHash}, nil
}

// VerifyReportStamp recomputes the hash of the current report content,
// checks that the stamped event was minted for this report id with this
// hash, and asks the ledger to verify the stamp's transaction. It returns
// false on any mismatch or fault; callers branch on the boolean to gate
// access, so this must never panic or surface an error.
func (r *Recorder) VerifyReportStamp(ctx context.Context, id string, content map[string]any, stamp model.Stamp) bool {
	if content == nil || stamp.LedgerTxID == "" {
		return false
	}
	contentHash, err := canonical.Hash(content)
	if err != nil {
		return false
	}
	if contentHash != stamp.ContentHash {
		return false
	}
	ev, err := r.ledger.Event(ctx, stamp.LedgerTxID)
	if err != nil || ev == nil {
		return false
	}
	// A stamp for a different report must not pass even when the contents
	// happen to be identical.
	if s, _ := ev.EventPayload["event_type"].(string); s != string(model.EventReportFinalized) {
		return false
	}
	if s, _ := ev.EventPayload["report_id"].(string); s != id {
		return false
	}
	if s, _ := ev.EventPayload["content_hash"].(string); s != contentHash {
		return false
	}
	res, err := r.ledger.Verify(ctx, stamp.LedgerTxID)
	if err != nil {
		return false
	}
	return res.Valid
}
