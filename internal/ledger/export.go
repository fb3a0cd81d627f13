// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/toeirei/ledgerlock/internal/model"
)

// exportEnvelope is the JSON export schema consumed by external audit
// tooling. Field names are part of the wire contract.
type exportEnvelope struct {
	Ledger       []model.AuditEvent `json:"ledger"`
	RootHash     string             `json:"root_hash"`
	TotalEntries int                `json:"total_entries"`
}

// Export renders the full ledger in the given format ("json" or "csv").
func (l *Ledger) Export(ctx context.Context, format string) ([]byte, error) {
	events, err := l.store.AllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events for export: %w", err)
	}
	switch strings.ToLower(format) {
	case "json":
		root, err := l.RootHash(ctx)
		if err != nil {
			return nil, err
		}
		env := exportEnvelope{Ledger: events, RootHash: root, TotalEntries: len(events)}
		if env.Ledger == nil {
			env.Ledger = []model.AuditEvent{}
		}
		return json.MarshalIndent(env, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"tx_id", "resource_id", "practitioner_id", "timestamp", "content_hash"}); err != nil {
			return nil, err
		}
		for _, ev := range events {
			if err := w.Write([]string{ev.TxID, ev.ResourceID, ev.ActorID, ev.Timestamp, ev.ContentHash}); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

// WriteExport writes an export to w, zstd-compressing when compress is set.
// Compressed archives let daily root finalization feed cheap offsite backups.
func (l *Ledger) WriteExport(ctx context.Context, w io.Writer, format string, compress bool) error {
	data, err := l.Export(ctx, format)
	if err != nil {
		return err
	}
	if !compress {
		_, err = w.Write(data)
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write compressed export: %w", err)
	}
	return zw.Close()
}

// ReadExport decompresses a zstd export stream, for tooling that verifies
// archived ledgers.
func ReadExport(r io.Reader) ([]byte, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
