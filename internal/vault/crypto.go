// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// deriveKey expands the vault master key into a per-secret key via
// HKDF-SHA256. Binding vault and path into the info string means a key
// derived for one path cannot open another path's ciphertext.
func deriveKey(masterKey []byte, vault, path string) ([]byte, error) {
	info := fmt.Sprintf("ledgerlock/vault/%s/%s", vault, path)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive secret key: %w", err)
	}
	return key, nil
}

// encrypt seals plaintext with XChaCha20-Poly1305 under the derived key.
// The random nonce is prepended to the ciphertext.
func encrypt(masterKey []byte, vault, path string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey, vault, path)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a ciphertext produced by encrypt for the same vault and path.
func decrypt(masterKey []byte, vault, path string, ciphertext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey, vault, path)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return plaintext, nil
}
