// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package merkle builds the per-day hash tree over ledger events and
// produces membership proofs. The tree has one deliberate shape quirk kept
// for compatibility with existing stored ledgers: an unpaired trailing node
// at any level is carried forward to the next level unchanged, not
// duplicated. Proof generation and verification both honor that rule.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ProofStep is one sibling hash on the path from a leaf to the root.
// Left indicates the sibling sits to the left of the running hash.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// Tree is an ephemeral Merkle tree over a fixed, ordered list of leaf
// hashes. Rebuild it when the underlying events change; it holds no state
// beyond the computed levels.
type Tree struct {
	levels [][]string // levels[0] = leaves, last level has exactly one node (or none)
}

// nodeHash combines two hex-encoded child hashes into the parent hash.
// The children's hex strings are concatenated and hashed as ASCII bytes;
// this matches the on-disk format of previously written ledgers.
func nodeHash(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// Build constructs the tree for the given leaf hashes. An empty leaf set
// yields a tree with an empty root.
func Build(leaves []string) *Tree {
	t := &Tree{}
	cur := make([]string, len(leaves))
	copy(cur, leaves)
	t.levels = append(t.levels, cur)
	for len(cur) > 1 {
		next := make([]string, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, nodeHash(cur[i], cur[i+1]))
			} else {
				// Odd trailing node: carried forward unchanged.
				next = append(next, cur[i])
			}
		}
		t.levels = append(t.levels, next)
		cur = next
	}
	return t
}

// Root returns the root hash, or "" for an empty tree.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

// Size returns the number of leaves.
func (t *Tree) Size() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the leaf at the given index. A carried
// node contributes no step at that level, so proofs can be shorter than the
// tree height.
func (t *Tree) Proof(index int) ([]ProofStep, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, len(t.levels[0]))
	}
	proof := []ProofStep{}
	i := index
	for _, level := range t.levels[:len(t.levels)-1] {
		if i%2 == 0 {
			if i+1 < len(level) {
				proof = append(proof, ProofStep{Hash: level[i+1], Left: false})
			}
			// else: carried forward, no sibling at this level
		} else {
			proof = append(proof, ProofStep{Hash: level[i-1], Left: true})
		}
		i /= 2
	}
	return proof, nil
}

// VerifyProof replays a proof path from a leaf hash and reports whether it
// resolves to the expected root.
func VerifyProof(leafHash string, proof []ProofStep, root string) bool {
	h := leafHash
	for _, step := range proof {
		if step.Left {
			h = nodeHash(step.Hash, h)
		} else {
			h = nodeHash(h, step.Hash)
		}
	}
	return h == root
}
