package model

import (
	"testing"
	"time"
)

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusDenied, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusRetrieved, false},
		{StatusApproved, StatusRetrieved, true},
		{StatusApproved, StatusExpired, true},
		{StatusApproved, StatusDenied, false},
		{StatusRetrieved, StatusExpired, false},
		{StatusExpired, StatusApproved, false},
		{StatusDenied, StatusApproved, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	for _, s := range []RequestStatus{StatusRetrieved, StatusExpired, StatusDenied, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []RequestStatus{StatusPending, StatusApproved} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestEventKindValid(t *testing.T) {
	if !EventRequest.Valid() || !EventCredentialRetrieved.Valid() {
		t.Fatal("known kinds should be valid")
	}
	if EventKind("BOGUS").Valid() {
		t.Fatal("unknown kind should be invalid")
	}
}

func TestEventKindRisk(t *testing.T) {
	if got := EventCredentialRetrieved.Risk(); got != "high" {
		t.Errorf("retrieved risk = %q, want high", got)
	}
	if got := EventRequest.Risk(); got != "low" {
		t.Errorf("request risk = %q, want low", got)
	}
	if got := EventKind("BOGUS").Risk(); got != "info" {
		t.Errorf("unknown risk = %q, want info", got)
	}
}

func TestFormatAndParseTxID(t *testing.T) {
	if got := FormatTxID(1); got != "tx-00000001" {
		t.Fatalf("FormatTxID(1) = %q", got)
	}
	if got := FormatTxID(12345678); got != "tx-12345678" {
		t.Fatalf("FormatTxID(12345678) = %q", got)
	}
	seq, err := ParseTxID("tx-00000042")
	if err != nil || seq != 42 {
		t.Fatalf("ParseTxID = (%d, %v), want (42, nil)", seq, err)
	}
	if _, err := ParseTxID("nope-1"); err == nil {
		t.Fatal("expected error for malformed tx id")
	}
}

func TestAuditEventDay(t *testing.T) {
	e := AuditEvent{Timestamp: time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC).Format(time.RFC3339Nano)}
	if got := e.Day(); got != "2026-03-14" {
		t.Errorf("Day() = %q, want 2026-03-14", got)
	}
	if got := (AuditEvent{Timestamp: "garbage"}).Day(); got != "" {
		t.Errorf("Day() on garbage = %q, want empty", got)
	}
}
