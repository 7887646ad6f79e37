// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/spf13/cobra"

	"go.dirwarden.dev/internal/reconcile"
)

var sweepWorkers int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile every known identity against the directory",
	Long: `Sweep walks all locally known identities and re-derives each one from the
directory. Identities that left the directory or no longer resolve to any role
are removed together with their user records; the rest have their user records
refreshed. One line per identity is printed, "removed <id>" or "updated <id>".

A directory outage aborts the sweep with a non-zero exit and no further
mutations, so a transient failure is never mistaken for a mass departure.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 4, "number of identities reconciled concurrently")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.cleanup()

	return rt.engine.Sweep(cmd.Context(), sweepWorkers, func(outcome reconcile.Outcome, uid string) {
		cmd.Printf("%s %s\n", outcome, uid)
	})
}
