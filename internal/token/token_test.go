package token

import (
	"context"
	"crypto/ed25519"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toeirei/ledgerlock/internal/approval"
	"github.com/toeirei/ledgerlock/internal/model"
)

func newTestIssuer(t *testing.T) (*Issuer, ed25519.PrivateKey) {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	iss, err := NewIssuer(key, NewMemoryNonceStore())
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	priv, pub, err := approval.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	if err := iss.RegisterApprover("owner-1", pub); err != nil {
		t.Fatalf("register approver: %v", err)
	}
	return iss, priv
}

func issueTestToken(t *testing.T, iss *Issuer, priv ed25519.PrivateKey) string {
	t.Helper()
	a, err := approval.NewApproval(priv, "req-1", "owner-1", 300, time.Now())
	if err != nil {
		t.Fatalf("new approval: %v", err)
	}
	tok, _, err := iss.IssueToken(a, model.Target{Vault: "v1", Path: "/p"}, 0)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestIssueAndValidate(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)

	claims, status, err := iss.ValidateToken(context.Background(), tok, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status != StatusValid {
		t.Fatalf("status = %s, want VALID", status)
	}
	if claims.ReqID != "req-1" || claims.Vault != "v1" || claims.Path != "/p" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Nonce == "" {
		t.Error("token issued without a nonce")
	}
}

func TestIssueRequiresValidApproval(t *testing.T) {
	iss, priv := newTestIssuer(t)
	target := model.Target{Vault: "v1", Path: "/p"}

	// Unknown approver.
	a, _ := approval.NewApproval(priv, "req-1", "stranger", 300, time.Now())
	if _, _, err := iss.IssueToken(a, target, 0); err == nil {
		t.Error("token issued for unregistered approver")
	}

	// Expired approval window.
	a, _ = approval.NewApproval(priv, "req-1", "owner-1", 60, time.Now().Add(-2*time.Minute))
	if _, _, err := iss.IssueToken(a, target, 0); err == nil {
		t.Error("token issued for expired approval")
	}

	// Tampered signature.
	a, _ = approval.NewApproval(priv, "req-1", "owner-1", 300, time.Now())
	a.ReqID = "req-other"
	if _, _, err := iss.IssueToken(a, target, 0); err == nil {
		t.Error("token issued for approval bound to a different request")
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)
	ctx := context.Background()

	cases := map[string]string{
		"garbage":          "not-a-token",
		"missing mac":      strings.Split(tok, ".")[0],
		"flipped payload":  "x" + tok,
		"truncated mac":    tok[:len(tok)-4],
		"swapped sections": strings.Split(tok, ".")[1] + "." + strings.Split(tok, ".")[0],
	}
	for name, bad := range cases {
		claims, status, err := iss.ValidateToken(ctx, bad, false)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if status != StatusInvalidSignature {
			t.Errorf("%s: status = %s, want INVALID_SIGNATURE", name, status)
		}
		if claims != nil {
			t.Errorf("%s: claims returned for unverified token", name)
		}
	}
}

func TestValidateRejectsForeignKey(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)

	other, _ := newTestIssuer(t)
	_, status, err := other.ValidateToken(context.Background(), tok, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status != StatusInvalidSignature {
		t.Errorf("status = %s, token sealed under a different key accepted", status)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)

	iss.SetClock(func() time.Time { return time.Now().Add(DefaultTokenTTL + time.Minute) })
	claims, status, err := iss.ValidateToken(context.Background(), tok, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status != StatusExpiredToken {
		t.Errorf("status = %s, want EXPIRED_TOKEN", status)
	}
	if claims == nil {
		t.Error("expired token with a good seal should still surface its claims")
	}
}

func TestSingleUse(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)
	ctx := context.Background()

	if _, status, _ := iss.ValidateToken(ctx, tok, true); status != StatusValid {
		t.Fatalf("first use status = %s", status)
	}
	if _, status, _ := iss.ValidateToken(ctx, tok, true); status != StatusNonceAlreadyUsed {
		t.Errorf("second use status = %s, want NONCE_ALREADY_USED", status)
	}
}

func TestConcurrentRedemptionExactlyOneWins(t *testing.T) {
	iss, priv := newTestIssuer(t)
	tok := issueTestToken(t, iss, priv)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan Status, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, status, err := iss.ValidateToken(ctx, tok, true)
			if err != nil {
				t.Errorf("validate: %v", err)
				return
			}
			results <- status
		}()
	}
	wg.Wait()
	close(results)

	valid, replayed := 0, 0
	for status := range results {
		switch status {
		case StatusValid:
			valid++
		case StatusNonceAlreadyUsed:
			replayed++
		default:
			t.Errorf("unexpected status %s", status)
		}
	}
	if valid != 1 {
		t.Errorf("%d redemptions succeeded, want exactly 1", valid)
	}
	if replayed != workers-1 {
		t.Errorf("%d redemptions saw NONCE_ALREADY_USED, want %d", replayed, workers-1)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), NewMemoryNonceStore()); err == nil {
		t.Error("expected error for undersized key")
	}
	key, _ := GenerateKey()
	if _, err := NewIssuer(key, nil); err == nil {
		t.Error("expected error for nil nonce store")
	}
	iss, _ := NewIssuer(key, NewMemoryNonceStore())
	if err := iss.RegisterApprover("", make([]byte, ed25519.PublicKeySize)); err == nil {
		t.Error("expected error for empty approver id")
	}
	if err := iss.RegisterApprover("x", []byte("short")); err == nil {
		t.Error("expected error for undersized public key")
	}
}
