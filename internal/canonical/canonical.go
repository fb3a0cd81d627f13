// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package canonical produces deterministic JSON serializations and content
// hashes. Two processes hashing the same logical payload must produce the
// same bytes regardless of field insertion order, so map keys are sorted and
// no incidental whitespace is emitted. Numbers survive as their original
// literals (no float round trip) via json.Number.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON serialization of v: compact output,
// object keys sorted lexicographically at every level.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	// Round trip through a generic value. encoding/json sorts map keys on
	// output, which gives the sorted-key property for free; UseNumber keeps
	// integer literals intact instead of forcing float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical re-marshal: %w", err)
	}
	return out, nil
}

// Hash returns the hex-encoded SHA-256 of the canonical serialization of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the hex-encoded SHA-256 of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
