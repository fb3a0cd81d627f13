// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package token issues and validates single-use retrieval tokens. A token is
// a capability minted only after a verified offline approval; it carries its
// claims in the clear and an HMAC-SHA256 seal that proves they were minted
// here. Validation outcomes are security decisions and travel as Status
// values, never as Go errors: a forged or expired token is a normal answer,
// not an exceptional condition.
package token

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toeirei/ledgerlock/internal/approval"
	"github.com/toeirei/ledgerlock/internal/model"
)

// Status is the outcome of a token validation.
type Status string

const (
	StatusValid            Status = "VALID"
	StatusInvalidSignature Status = "INVALID_SIGNATURE"
	StatusExpiredToken     Status = "EXPIRED_TOKEN"
	StatusNonceAlreadyUsed Status = "NONCE_ALREADY_USED"
)

// DefaultTokenTTL is the token lifetime when the caller does not specify one.
const DefaultTokenTTL = 5 * time.Minute

// MinKeySize is the smallest HMAC key the issuer accepts.
const MinKeySize = 16

// Issuer mints and validates retrieval tokens. Approver public keys are
// registered up front; issuance refuses any approval that does not verify
// against a registered key.
type Issuer struct {
	mu        sync.RWMutex
	key       []byte
	approvers map[string]ed25519.PublicKey
	nonces    NonceStore
	now       func() time.Time
}

// NewIssuer returns an issuer sealing tokens with key and tracking consumed
// nonces in store.
func NewIssuer(key []byte, store NonceStore) (*Issuer, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("hmac key must be at least %d bytes, got %d", MinKeySize, len(key))
	}
	if store == nil {
		return nil, fmt.Errorf("nonce store cannot be nil")
	}
	return &Issuer{
		key:       append([]byte(nil), key...),
		approvers: make(map[string]ed25519.PublicKey),
		nonces:    store,
		now:       time.Now,
	}, nil
}

// GenerateKey returns a fresh random HMAC key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate hmac key: %w", err)
	}
	return key, nil
}

// SetClock overrides the time source. Intended for tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.now = now
}

// RegisterApprover records the public key issuance will verify approvals
// against. Re-registering an id replaces its key.
func (i *Issuer) RegisterApprover(approverID string, pub ed25519.PublicKey) error {
	if approverID == "" {
		return fmt.Errorf("approver id cannot be empty")
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.approvers[approverID] = pub
	return nil
}

// IssueToken mints a single-use token for the approved request. The approval
// must carry a valid signature from a registered approver and still be inside
// its TTL window; otherwise no token is produced.
func (i *Issuer) IssueToken(a model.ApprovalSignature, target model.Target, ttl time.Duration) (string, *model.TokenClaims, error) {
	i.mu.RLock()
	pub, ok := i.approvers[a.ApproverID]
	now := i.now()
	i.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("unknown approver %q", a.ApproverID)
	}
	if !approval.VerifyApproval(pub, a, now) {
		return "", nil, fmt.Errorf("approval for %s did not verify", a.ReqID)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	claims := model.TokenClaims{
		ReqID: a.ReqID,
		Vault: target.Vault,
		Path:  target.Path,
		ExpTS: now.Add(ttl).Unix(),
		Nonce: uuid.NewString(),
	}
	tok, err := i.seal(claims)
	if err != nil {
		return "", nil, err
	}
	return tok, &claims, nil
}

// seal serializes the claims and appends their HMAC:
// b64url(claimsJSON) "." b64url(mac).
func (i *Issuer) seal(claims model.TokenClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token claims: %w", err)
	}
	mac := hmac.New(sha256.New, i.key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// ValidateToken checks a presented token. Order matters: the seal is checked
// first (an attacker-controlled payload is never parsed as trusted before its
// MAC passes), then expiry, then single-use. With checkNonce the nonce is
// atomically consumed, so of N concurrent presentations of the same token
// exactly one sees VALID.
//
// The claims are returned whenever the seal verified, including for expired
// and replayed tokens, so callers can log what was attempted.
func (i *Issuer) ValidateToken(ctx context.Context, tok string, checkNonce bool) (*model.TokenClaims, Status, error) {
	i.mu.RLock()
	key := i.key
	now := i.now()
	i.mu.RUnlock()

	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return nil, StatusInvalidSignature, nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, StatusInvalidSignature, nil
	}
	gotMAC, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, StatusInvalidSignature, nil
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), gotMAC) {
		return nil, StatusInvalidSignature, nil
	}

	var claims model.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, StatusInvalidSignature, nil
	}
	if now.Unix() > claims.ExpTS {
		return &claims, StatusExpiredToken, nil
	}
	if checkNonce {
		fresh, err := i.nonces.Consume(ctx, claims.Nonce)
		if err != nil {
			return nil, "", fmt.Errorf("consume nonce: %w", err)
		}
		if !fresh {
			return &claims, StatusNonceAlreadyUsed, nil
		}
	}
	return &claims, StatusValid, nil
}

// ConsumeNonce marks a nonce used without full validation. The vault adapter
// uses it to burn the nonce exactly once after all cheaper checks pass.
func (i *Issuer) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	return i.nonces.Consume(ctx, nonce)
}
