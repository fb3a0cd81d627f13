// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/ledgerlock/internal/approval"
	"github.com/toeirei/ledgerlock/internal/i18n"
	"github.com/toeirei/ledgerlock/internal/ledger"
	"github.com/toeirei/ledgerlock/internal/model"
	"github.com/toeirei/ledgerlock/internal/recorder"
	"github.com/toeirei/ledgerlock/internal/request"
	"github.com/toeirei/ledgerlock/internal/security"
	"github.com/toeirei/ledgerlock/internal/token"
	"github.com/toeirei/ledgerlock/internal/vault"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an approver Ed25519 key pair as PEM files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		priv, pub, err := approval.GenerateKeyPair()
		if err != nil {
			return err
		}
		privPEM, err := approval.MarshalPrivateKeyPEM(priv)
		if err != nil {
			return err
		}
		pubPEM, err := approval.MarshalPublicKeyPEM(pub)
		if err != nil {
			return err
		}

		privPath := out + ".pem"
		pubPath := out + ".pub.pem"
		if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}
		fmt.Println(i18n.Tf("keygen.written", map[string]any{
			"Private": privPath,
			"Public":  pubPath,
		}))
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Sign an offline approval for a credential request",
	Long: `Produces an approval signature blob for a request without contacting
the server. The private key stays on this machine; only the resulting
JSON blob travels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reqID, _ := cmd.Flags().GetString("req-id")
		keyPath, _ := cmd.Flags().GetString("key")
		approverID, _ := cmd.Flags().GetString("approver")
		ttl, _ := cmd.Flags().GetInt("ttl")
		output, _ := cmd.Flags().GetString("output")

		pemData, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		priv, err := approval.ParsePrivateKeyPEM(pemData)
		if err != nil {
			return err
		}
		a, err := approval.NewApproval(priv, reqID, approverID, ttl, time.Now())
		if err != nil {
			return err
		}
		blob, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		if output == "" {
			fmt.Println(string(blob))
			return nil
		}
		if err := os.WriteFile(output, blob, 0644); err != nil {
			return fmt.Errorf("write approval: %w", err)
		}
		fmt.Println(i18n.Tf("approve.signed", map[string]any{
			"ReqID":  reqID,
			"Output": output,
		}))
		return nil
	},
}

// selfTestCmd exercises the whole broker pipeline against in-memory stores:
// request, offline approval, token issuance, vault retrieval, and
// verification of every stamp the flow left in the ledger. It never touches
// the configured database.
var selfTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the built-in end-to-end self-test",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fmt.Println(i18n.T("ledger.selftest.start"))

		fail := func(reason string) error {
			fmt.Println(i18n.Tf("ledger.selftest.fail", map[string]any{"Reason": reason}))
			os.Exit(1)
			return nil
		}

		l, err := ledger.New(ctx, ledger.NewMemoryStore())
		if err != nil {
			return err
		}
		rec := recorder.New(l)
		mgr := request.NewManager(request.NewMemoryStore(), rec)

		req, err := mgr.CreateRequest(ctx, "dr.selftest", "self-test run",
			model.Target{Vault: "selftest", Path: "/probe"}, nil, 0)
		if err != nil {
			return err
		}

		priv, pub, err := approval.GenerateKeyPair()
		if err != nil {
			return err
		}
		key, err := token.GenerateKey()
		if err != nil {
			return err
		}
		iss, err := token.NewIssuer(key, token.NewMemoryNonceStore())
		if err != nil {
			return err
		}
		if err := iss.RegisterApprover("selftest-owner", pub); err != nil {
			return err
		}
		a, err := approval.NewApproval(priv, req.ReqID, "selftest-owner", 60, time.Now())
		if err != nil {
			return err
		}
		if _, err := mgr.UpdateRequestStatus(ctx, req.ReqID, model.StatusApproved,
			map[string]string{"actor_id": "selftest-owner"}); err != nil {
			return err
		}
		tok, _, err := iss.IssueToken(a, req.Target, 0)
		if err != nil {
			return err
		}

		master, err := token.GenerateKey()
		if err != nil {
			return err
		}
		vlt, err := vault.NewAdapter("selftest", master, vault.NewMemorySecretStore(), iss, rec)
		if err != nil {
			return err
		}
		if err := vlt.StoreSecret(ctx, "/probe", "selftest-owner", security.FromString("probe-value")); err != nil {
			return err
		}
		secret, status, err := vlt.RetrieveSecret(ctx, tok, "/probe", "dr.selftest")
		if err != nil {
			return err
		}
		if status != vault.StatusSuccess {
			return fail(fmt.Sprintf("retrieval status %s", status))
		}
		if !bytes.Equal(secret.Bytes(), []byte("probe-value")) {
			return fail("retrieved secret does not match stored value")
		}
		// A replay must be refused.
		if _, status, _ := vlt.RetrieveSecret(ctx, tok, "/probe", "dr.selftest"); status != vault.StatusNonceAlreadyUsed {
			return fail(fmt.Sprintf("token replay returned %s", status))
		}

		// Every stamp the flow produced must verify against the day root.
		events, err := l.List(ctx, 0)
		if err != nil {
			return err
		}
		for _, ev := range events {
			res, err := l.Verify(ctx, ev.TxID)
			if err != nil {
				return err
			}
			if !res.Valid {
				return fail(fmt.Sprintf("%s failed verification: %s", ev.TxID, res.Reason))
			}
		}

		fmt.Println(i18n.Tf("ledger.selftest.pass", map[string]any{"Count": len(events)}))
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("out", "approver", "output path prefix (<out>.pem, <out>.pub.pem)")

	approveCmd.Flags().String("req-id", "", "credential request id to approve")
	approveCmd.Flags().String("key", "", "path to the approver's private key PEM")
	approveCmd.Flags().String("approver", "", "approver identifier")
	approveCmd.Flags().Int("ttl", 300, "approval validity window in seconds")
	approveCmd.Flags().String("output", "", "write the approval blob to this file (stdout when omitted)")
	_ = approveCmd.MarkFlagRequired("req-id")
	_ = approveCmd.MarkFlagRequired("key")
	_ = approveCmd.MarkFlagRequired("approver")
}
