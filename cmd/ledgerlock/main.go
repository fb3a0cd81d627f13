// Copyright (c) 2026 ToeiRei
// Ledgerlock - emergency credential broker with a tamper-evident audit ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for the Ledgerlock
// application using the Cobra library. It defines the root command, the
// ledger subcommands (append, verify, export, stats, list, test) and the
// broker subcommands (keygen, approve), flags, and the main entry point.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/ledgerlock/internal/config"
	"github.com/toeirei/ledgerlock/internal/db"
	"github.com/toeirei/ledgerlock/internal/i18n"
	"github.com/toeirei/ledgerlock/internal/ledger"
	"github.com/toeirei/ledgerlock/internal/logging"
)

var version = "dev" // this will be set by the linker
var cfgFile string

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

var rootCmd *cobra.Command

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd = newRootCmd()

	// Set defaults in viper. These are used if not set in the config file or by flags.
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "./ledgerlock.db")
	viper.SetDefault("language", "en")
}

// newRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgerlock",
		Short: "Ledgerlock is a tamper-evident audit ledger and emergency credential broker.",
		Long: `Ledgerlock keeps an append-only, hash-chained audit ledger with
per-day Merkle roots, and brokers emergency credential retrieval:
requests, offline Ed25519 approvals, single-use HMAC tokens, and an
encrypted vault. Every lifecycle event lands in the ledger and can be
verified afterwards.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize i18n and the database for all commands.
			// Viper has already read the config by this point.
			i18n.Init(viper.GetString("language"))
			logging.SetDebug(viper.GetBool("debug"))
			if storage, _ := cmd.Flags().GetString("storage"); storage != "" {
				viper.Set("database.type", "sqlite")
				viper.Set("database.dsn", storage)
			}
			dbType := viper.GetString("database.type")
			dsn := viper.GetString("database.dsn")
			if err := db.InitDB(dbType, dsn); err != nil {
				return fmt.Errorf("%s: %w", i18n.T("error.db.init"), err)
			}
			return nil
		},
	}

	cmd.AddCommand(appendCmd)
	cmd.AddCommand(verifyCmd)
	cmd.AddCommand(exportCmd)
	cmd.AddCommand(statsCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(selfTestCmd)
	cmd.AddCommand(keygenCmd)
	cmd.AddCommand(approveCmd)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ledgerlock.yaml)")
	cmd.PersistentFlags().String("storage", "", "path to the SQLite ledger file (shorthand for --db-type sqlite --db-dsn <path>)")
	cmd.PersistentFlags().String("db-type", "sqlite", "Database type (e.g., sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("db-dsn", "./ledgerlock.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("lang", "en", `output language ("en")`)
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// Bind flags to viper
	_ = viper.BindPFlag("database.type", cmd.PersistentFlags().Lookup("db-type"))
	_ = viper.BindPFlag("database.dsn", cmd.PersistentFlags().Lookup("db-dsn"))
	_ = viper.BindPFlag("language", cmd.PersistentFlags().Lookup("lang"))
	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))

	return cmd
}

// initConfig reads in the config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if path, err := config.UserConfigPath(); err == nil {
			viper.AddConfigPath(filepath.Dir(path))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("ledgerlock")
	}

	viper.SetEnvPrefix("LEDGERLOCK")
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// First run: drop a default config at the user location so
			// operators have a file to edit.
			c := config.Defaults()
			if werr := config.WriteConfigFile(&c, false); werr != nil {
				logging.Debugf("could not write default config: %v", werr)
			} else if path, perr := config.UserConfigPath(); perr == nil {
				logging.Debugf("wrote default config to %s", path)
			}
			return
		}
		logging.Warnf("could not read config file: %v", err)
	}
}

// openLedger builds a ledger over the initialized store.
func openLedger(ctx context.Context) (*ledger.Ledger, error) {
	if !db.IsInitialized() {
		return nil, fmt.Errorf("database not initialized")
	}
	return ledger.New(ctx, db.Get())
}
