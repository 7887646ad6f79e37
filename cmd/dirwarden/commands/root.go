// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package commands implements the dirwarden CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time via ldflags.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dirwarden",
	Short: "Directory-backed authentication and role mapping",
	Long: `Dirwarden authenticates users against an LDAP directory and maps their
group memberships onto locally defined roles, keeping a local shadow of each
known user in sync with the directory.

Use "dirwarden [command] --help" for more information about a command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "dirwarden.yaml", "path to the configuration file")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(loginCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
