// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// package db provides the data access layer for Ledgerlock.
// This file contains the bun-backed Store satisfying the persistence
// interfaces of the ledger, request, token and vault packages.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/ledgerlock/internal/model"
)

// Store is the durable persistence layer. One Store satisfies
// ledger.EventStore, request.Store, token.NonceStore and vault.SecretStore;
// dialect differences live entirely in the migration files.
type Store struct {
	bun *bun.DB
}

// NewStore wraps an existing bun handle. Most callers should use
// NewStoreFromDSN instead.
func NewStore(bdb *bun.DB) *Store {
	return &Store{bun: bdb}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.bun.Close()
}

// --- ledger.EventStore ---

// AppendEvent inserts an audit event. The unique index on tx_id turns a
// replayed insert into ErrDuplicate; nothing ever updates or deletes rows in
// audit_events.
func (s *Store) AppendEvent(ctx context.Context, ev model.AuditEvent) error {
	m, err := auditEventFromModel(ev)
	if err != nil {
		return err
	}
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// EventsForDay returns the day's events in append order.
func (s *Store) EventsForDay(ctx context.Context, day string) ([]model.AuditEvent, error) {
	var rows []AuditEventModel
	err := s.bun.NewSelect().Model(&rows).Where("day = ?", day).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return auditEventsToModels(rows)
}

// EventByTxID returns the event with the given tx id, or nil.
func (s *Store) EventByTxID(ctx context.Context, txID string) (*model.AuditEvent, error) {
	var row AuditEventModel
	err := s.bun.NewSelect().Model(&row).Where("tx_id = ?", txID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ev, err := auditEventToModel(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// LastEvent returns the most recently appended event, or nil when empty.
func (s *Store) LastEvent(ctx context.Context) (*model.AuditEvent, error) {
	var row AuditEventModel
	err := s.bun.NewSelect().Model(&row).Order("id DESC").Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ev, err := auditEventToModel(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// AllEvents returns every event in append order.
func (s *Store) AllEvents(ctx context.Context) ([]model.AuditEvent, error) {
	var rows []AuditEventModel
	if err := s.bun.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return auditEventsToModels(rows)
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	return s.bun.NewSelect().Model((*AuditEventModel)(nil)).Count(ctx)
}

// SaveDayRoot inserts a new root version for the day. Versions are
// insert-only; LatestDayRoot picks the newest.
func (s *Store) SaveDayRoot(ctx context.Context, day, rootHash string, totalEvents int) error {
	m := DayRootModel{
		Day:         day,
		RootHash:    rootHash,
		TotalEvents: totalEvents,
		ComputedAt:  time.Now().UTC(),
	}
	_, err := s.bun.NewInsert().Model(&m).Exec(ctx)
	return err
}

// LatestDayRoot returns the most recent root for the day, or "".
func (s *Store) LatestDayRoot(ctx context.Context, day string) (string, error) {
	var row DayRootModel
	err := s.bun.NewSelect().Model(&row).Where("day = ?", day).Order("id DESC").Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return row.RootHash, nil
}

// Days returns the distinct day partitions in chronological order.
func (s *Store) Days(ctx context.Context) ([]string, error) {
	var days []string
	err := s.bun.NewSelect().
		Model((*AuditEventModel)(nil)).
		ColumnExpr("DISTINCT day").
		OrderExpr("day ASC").
		Scan(ctx, &days)
	if err != nil {
		return nil, err
	}
	return days, nil
}

func auditEventsToModels(rows []AuditEventModel) ([]model.AuditEvent, error) {
	out := make([]model.AuditEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := auditEventToModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- request.Store ---

// SaveRequest stores a new credential request.
func (s *Store) SaveRequest(ctx context.Context, req model.CredentialRequest) error {
	m, err := requestFromModel(req)
	if err != nil {
		return err
	}
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// GetRequest returns the request with the given id, or nil when unknown.
func (s *Store) GetRequest(ctx context.Context, reqID string) (*model.CredentialRequest, error) {
	var row CredentialRequestModel
	err := s.bun.NewSelect().Model(&row).Where("req_id = ?", reqID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	req, err := requestToModel(row)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateRequest replaces the stored request state.
func (s *Store) UpdateRequest(ctx context.Context, req model.CredentialRequest) error {
	m, err := requestFromModel(req)
	if err != nil {
		return err
	}
	res, err := s.bun.NewUpdate().Model(&m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s not found", req.ReqID)
	}
	return nil
}

// ListRequests returns all requests ordered by creation time.
func (s *Store) ListRequests(ctx context.Context) ([]model.CredentialRequest, error) {
	var rows []CredentialRequestModel
	if err := s.bun.NewSelect().Model(&rows).Order("created_ts ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.CredentialRequest, 0, len(rows))
	for _, row := range rows {
		req, err := requestToModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// --- token.NonceStore ---

// Consume marks a token nonce used. The primary key makes this an atomic
// check-and-set across processes: exactly one caller gets true.
func (s *Store) Consume(ctx context.Context, nonce string) (bool, error) {
	m := ConsumedNonceModel{Nonce: nonce, ConsumedAt: time.Now().UTC()}
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		if errors.Is(MapDBError(err), ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Seen reports whether the nonce has already been consumed.
func (s *Store) Seen(ctx context.Context, nonce string) (bool, error) {
	n, err := s.bun.NewSelect().Model((*ConsumedNonceModel)(nil)).Where("nonce = ?", nonce).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- vault.SecretStore ---

// SaveSecret inserts or replaces the secret at (vault, path). Insert-then-
// update keeps the operation portable across all three dialects.
func (s *Store) SaveSecret(ctx context.Context, secret model.VaultSecret) error {
	m := VaultSecretModel{
		Vault:      secret.Vault,
		Path:       secret.Path,
		Ciphertext: secret.Ciphertext,
		OwnerID:    secret.OwnerID,
	}
	_, err := s.bun.NewInsert().Model(&m).Exec(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(MapDBError(err), ErrDuplicate) {
		return err
	}
	_, err = s.bun.NewUpdate().
		Model((*VaultSecretModel)(nil)).
		Set("ciphertext = ?", secret.Ciphertext).
		Set("owner_id = ?", secret.OwnerID).
		Where("vault = ?", secret.Vault).
		Where("path = ?", secret.Path).
		Exec(ctx)
	return err
}

// GetSecret returns the secret stored at (vault, path), or nil.
func (s *Store) GetSecret(ctx context.Context, vault, path string) (*model.VaultSecret, error) {
	var row VaultSecretModel
	err := s.bun.NewSelect().Model(&row).
		Where("vault = ?", vault).
		Where("path = ?", path).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &model.VaultSecret{
		Vault:      row.Vault,
		Path:       row.Path,
		Ciphertext: row.Ciphertext,
		OwnerID:    row.OwnerID,
	}, nil
}

// ListPaths returns the paths holding secrets in the named vault.
func (s *Store) ListPaths(ctx context.Context, vault string) ([]string, error) {
	var paths []string
	err := s.bun.NewSelect().
		Model((*VaultSecretModel)(nil)).
		Column("path").
		Where("vault = ?", vault).
		Order("path ASC").
		Scan(ctx, &paths)
	if err != nil {
		return nil, err
	}
	return paths, nil
}
