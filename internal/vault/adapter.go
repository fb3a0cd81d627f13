// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package vault is the guarded door in front of stored credentials. Secrets
// rest encrypted under keys derived from a vault master key; the only read
// path is RetrieveSecret, which demands a sealed single-use token and runs
// its checks in a fixed order so the nonce is burned only after every
// cheaper check has passed. Like token validation, retrieval outcomes are
// Status values: a denied retrieval is an answer, not an error.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/ledgerlock/internal/model"
	"github.com/toeirei/ledgerlock/internal/recorder"
	"github.com/toeirei/ledgerlock/internal/security"
	"github.com/toeirei/ledgerlock/internal/token"
)

// Status is the outcome of a retrieval attempt.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusInvalidSignature Status = "INVALID_SIGNATURE"
	StatusExpiredToken     Status = "EXPIRED_TOKEN"
	StatusNonceAlreadyUsed Status = "NONCE_ALREADY_USED"
	StatusScopeMismatch    Status = "SCOPE_MISMATCH"
	StatusSecretNotFound   Status = "SECRET_NOT_FOUND"
)

// MinMasterKeySize is the smallest master key the adapter accepts.
const MinMasterKeySize = 16

// Adapter mediates access to one named vault.
type Adapter struct {
	name      string
	masterKey []byte
	store     SecretStore
	issuer    *token.Issuer
	rec       *recorder.Recorder
	now       func() time.Time
}

// NewAdapter returns an adapter for the named vault. The recorder may be nil
// when retrieval stamping is handled by the caller.
func NewAdapter(name string, masterKey []byte, store SecretStore, issuer *token.Issuer, rec *recorder.Recorder) (*Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("vault name cannot be empty")
	}
	if len(masterKey) < MinMasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeySize, len(masterKey))
	}
	if store == nil || issuer == nil {
		return nil, fmt.Errorf("secret store and token issuer cannot be nil")
	}
	return &Adapter{
		name:      name,
		masterKey: append([]byte(nil), masterKey...),
		store:     store,
		issuer:    issuer,
		rec:       rec,
		now:       time.Now,
	}, nil
}

// Name returns the vault's name, the value token scopes are matched against.
func (a *Adapter) Name() string { return a.name }

// StoreSecret encrypts and persists a secret at path. Writing takes no
// token; custody of write access is an operator concern.
func (a *Adapter) StoreSecret(ctx context.Context, path, ownerID string, plaintext security.Secret) error {
	if path == "" {
		return fmt.Errorf("secret path cannot be empty")
	}
	ciphertext, err := encrypt(a.masterKey, a.name, path, plaintext.Bytes())
	if err != nil {
		return err
	}
	return a.store.SaveSecret(ctx, model.VaultSecret{
		Vault:      a.name,
		Path:       path,
		Ciphertext: ciphertext,
		OwnerID:    ownerID,
	})
}

// ListPaths returns the paths holding secrets in this vault.
func (a *Adapter) ListPaths(ctx context.Context) ([]string, error) {
	return a.store.ListPaths(ctx, a.name)
}

// RetrieveSecret validates the presented token and, if every check passes,
// returns the decrypted secret and stamps a CREDENTIAL_RETRIEVED event.
//
// Checks run in a fixed order: seal and expiry first, then scope against the
// caller-stated path, then secret existence, and only then the atomic nonce
// burn. A token is therefore never consumed by a request that would have
// failed anyway, and a second presentation of a consumed token never
// re-exposes the secret.
func (a *Adapter) RetrieveSecret(ctx context.Context, tok, path, actorID string) (security.Secret, Status, error) {
	claims, tokStatus, err := a.issuer.ValidateToken(ctx, tok, false)
	if err != nil {
		return nil, "", err
	}
	if tokStatus != token.StatusValid {
		return nil, Status(tokStatus), nil
	}
	if claims.Vault != a.name || claims.Path != path {
		return nil, StatusScopeMismatch, nil
	}
	stored, err := a.store.GetSecret(ctx, a.name, path)
	if err != nil {
		return nil, "", fmt.Errorf("load secret: %w", err)
	}
	if stored == nil {
		return nil, StatusSecretNotFound, nil
	}
	fresh, err := a.issuer.ConsumeNonce(ctx, claims.Nonce)
	if err != nil {
		return nil, "", fmt.Errorf("consume nonce: %w", err)
	}
	if !fresh {
		return nil, StatusNonceAlreadyUsed, nil
	}

	plaintext, err := decrypt(a.masterKey, a.name, path, stored.Ciphertext)
	if err != nil {
		return nil, "", err
	}
	if a.rec != nil {
		_, err := a.rec.RecordCredentialEvent(ctx, model.EventCredentialRetrieved, claims.ReqID, actorID, map[string]string{
			"vault": a.name,
			"path":  path,
		})
		if err != nil {
			return nil, "", fmt.Errorf("stamp retrieval event: %w", err)
		}
	}
	return security.FromBytes(plaintext), StatusSuccess, nil
}
