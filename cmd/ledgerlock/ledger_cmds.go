// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toeirei/ledgerlock/internal/i18n"
	"github.com/toeirei/ledgerlock/internal/logging"
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Stamp a prehashed event into the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		resource, _ := cmd.Flags().GetString("resource")
		practitioner, _ := cmd.Flags().GetString("practitioner")
		hash, _ := cmd.Flags().GetString("hash")

		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		ev, err := l.AppendPrehashed(cmd.Context(), resource, practitioner, hash)
		if err != nil {
			return err
		}
		fmt.Println(i18n.Tf("ledger.append.success", map[string]any{
			"TxID":        ev.TxID,
			"ContentHash": ev.ContentHash,
		}))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an event's Merkle proof and chain linkage",
	RunE: func(cmd *cobra.Command, args []string) error {
		txID, _ := cmd.Flags().GetString("tx-id")

		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		res, err := l.Verify(cmd.Context(), txID)
		if err != nil {
			return err
		}
		if !res.Valid {
			fmt.Println(i18n.Tf("ledger.verify.invalid", map[string]any{
				"TxID":   txID,
				"Reason": res.Reason,
			}))
			os.Exit(1)
		}
		fmt.Println(i18n.Tf("ledger.verify.valid", map[string]any{"TxID": txID}))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full ledger as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		if output == "" {
			return l.WriteExport(cmd.Context(), os.Stdout, format, false)
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		// A .zst suffix selects a compressed archive.
		compress := strings.HasSuffix(output, ".zst")
		if err := l.WriteExport(cmd.Context(), f, format, compress); err != nil {
			return err
		}
		stat, err := l.Stat(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(i18n.Tf("ledger.export.written", map[string]any{
			"Count":  stat.TotalEntries,
			"Output": output,
		}))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger totals, per-day roots and chain head",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		st, err := l.Stat(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(i18n.T("ledger.stats.header"))
		fmt.Println(i18n.Tf("ledger.stats.total", map[string]any{"Count": st.TotalEntries}))
		if st.RootHash != "" {
			fmt.Println(i18n.Tf("ledger.stats.root", map[string]any{"Root": st.RootHash}))
		}
		if st.LastTxID != "" {
			fmt.Printf("Last tx: %s\n", st.LastTxID)
		}
		for _, day := range st.Days {
			fmt.Printf("  %s  %4d events  root %s\n", day.Day, day.Events, day.Root)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ledger events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		events, err := l.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println(i18n.T("ledger.list.empty"))
			return nil
		}
		for _, ev := range events {
			fmt.Printf("%s  %s  %-24s  %s\n", ev.TxID, ev.Timestamp, ev.ResourceID, ev.ActorID)
		}
		logging.Debugf("listed %d events", len(events))
		return nil
	},
}

func init() {
	appendCmd.Flags().String("resource", "", "resource identifier the event concerns")
	appendCmd.Flags().String("practitioner", "", "acting practitioner identifier")
	appendCmd.Flags().String("hash", "", "precomputed content hash to stamp")
	_ = appendCmd.MarkFlagRequired("resource")
	_ = appendCmd.MarkFlagRequired("practitioner")
	_ = appendCmd.MarkFlagRequired("hash")

	verifyCmd.Flags().String("tx-id", "", "transaction id to verify")
	_ = verifyCmd.MarkFlagRequired("tx-id")

	exportCmd.Flags().String("format", "json", "export format: json or csv")
	exportCmd.Flags().String("output", "", "output file (stdout when omitted; .zst compresses)")

	listCmd.Flags().Int("limit", 20, "maximum number of events to list (0 = all)")
}
