package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
)

func TestExportJSONSchema(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, "res", "actor", map[string]any{"i": i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	data, err := l.Export(ctx, "json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var env struct {
		Ledger       []map[string]any `json:"ledger"`
		RootHash     string           `json:"root_hash"`
		TotalEntries int              `json:"total_entries"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if env.TotalEntries != 3 || len(env.Ledger) != 3 {
		t.Errorf("export totals = %d entries, %d listed", env.TotalEntries, len(env.Ledger))
	}
	if env.RootHash == "" {
		t.Error("export missing root_hash")
	}
	if _, ok := env.Ledger[0]["previous_hash"]; !ok {
		t.Error("exported event missing previous_hash field")
	}
}

func TestExportJSONEmptyLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	data, err := l.Export(context.Background(), "json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(data), `"ledger": []`) {
		t.Errorf("empty export should list an empty array, got: %s", data)
	}
}

func TestExportCSVHeader(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.Append(ctx, "report-9", "dr.b", map[string]any{"x": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := l.Export(ctx, "csv")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	wantHeader := []string{"tx_id", "resource_id", "practitioner_id", "timestamp", "content_hash"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("csv header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	if len(rows) != 2 || rows[1][0] != "tx-00000001" || rows[1][1] != "report-9" {
		t.Errorf("csv rows = %+v", rows)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Export(context.Background(), "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestWriteExportZstdRoundTrip(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.Append(ctx, "res", "actor", map[string]any{"x": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	plain, err := l.Export(ctx, "json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var buf bytes.Buffer
	if err := l.WriteExport(ctx, &buf, "json", true); err != nil {
		t.Fatalf("write compressed: %v", err)
	}
	got, err := ReadExport(&buf)
	if err != nil {
		t.Fatalf("read compressed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("compressed round trip does not match plain export")
	}
}
