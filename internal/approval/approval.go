// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package approval implements the asymmetric signature service behind
// offline approvals. An owner signs "req_id | approved_ts" with an ed25519
// private key on their own machine; the server later verifies the signature
// with the registered public key. No network round trip is needed to
// produce an approval, and the private key never touches the server.
package approval

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/toeirei/ledgerlock/internal/model"
)

// GenerateKeyPair creates a new ed25519 key pair for an approver.
func GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return priv, pub, nil
}

// Message builds the canonical approval message for a request and approval
// timestamp. Binding the timestamp into the signed bytes prevents replaying
// an approval against a different request or outside its issuance moment.
func Message(reqID string, approvedTS time.Time) []byte {
	return []byte(fmt.Sprintf("%s | %s", reqID, approvedTS.UTC().Format(time.RFC3339)))
}

// SignMessage signs arbitrary bytes with the approver's private key.
// Ed25519 signing is deterministic; the same key and message always produce
// the same signature.
func SignMessage(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// VerifySignature reports whether sig is a valid signature of message under
// pub. Boolean decision, never an error.
func VerifySignature(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// NewApproval signs an approval for reqID at the given moment. This is the
// offline half of the protocol: it needs only the private key.
func NewApproval(priv ed25519.PrivateKey, reqID, approverID string, ttlSeconds int, approvedTS time.Time) (model.ApprovalSignature, error) {
	if reqID == "" || approverID == "" {
		return model.ApprovalSignature{}, fmt.Errorf("request id and approver id cannot be empty")
	}
	if ttlSeconds <= 0 {
		return model.ApprovalSignature{}, fmt.Errorf("approval ttl must be positive")
	}
	approvedTS = approvedTS.UTC().Truncate(time.Second)
	sig := SignMessage(priv, Message(reqID, approvedTS))
	return model.ApprovalSignature{
		ReqID:      reqID,
		ApproverID: approverID,
		ApprovedTS: approvedTS,
		Signature:  base64.StdEncoding.EncodeToString(sig),
		TTLSeconds: ttlSeconds,
	}, nil
}

// VerifyApproval checks an approval's signature and its TTL window at the
// given moment. The approval is a capability: a good signature inside the
// window is sufficient to authorize token issuance.
func VerifyApproval(pub ed25519.PublicKey, a model.ApprovalSignature, now time.Time) bool {
	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		return false
	}
	if !VerifySignature(pub, Message(a.ReqID, a.ApprovedTS), sig) {
		return false
	}
	if a.TTLSeconds <= 0 {
		return false
	}
	now = now.UTC()
	if now.Before(a.ApprovedTS) {
		return false
	}
	return now.Sub(a.ApprovedTS) <= time.Duration(a.TTLSeconds)*time.Second
}
