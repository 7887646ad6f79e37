// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go.dirwarden.dev/internal/auth"
	"go.dirwarden.dev/internal/authz"
	"go.dirwarden.dev/internal/constable"
)

const errAccessDenied = constable.Error("access denied")

var loginSite int64

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Check a credential and show the resulting access",
	Long: `Login verifies a credential against the directory, reconciles the local
identity, and prints the roles, permissions and sites the user ends up with.
The password is read from the first line of standard input.

With --site the access is evaluated for that site only, the way a site-scoped
application would see it.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().Int64Var(&loginSite, "site", 0, "evaluate access for this site only")
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.cleanup()

	password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	var site *authz.SiteID
	if cmd.Flags().Changed("site") {
		s := authz.SiteID(loginSite)
		site = &s
	}

	authenticator := auth.New(rt.directory, rt.engine, rt.config.NewDecisionCache())
	decision, err := authenticator.Login(cmd.Context(), args[0], password, site)
	if err != nil {
		return err
	}
	if decision == nil {
		return errAccessDenied
	}

	cmd.Printf("session %s\n", decision.ID)
	for _, role := range decision.EffectiveRoles {
		cmd.Printf("role %s\n", role.Name)
	}
	for _, permission := range decision.Permissions() {
		cmd.Printf("permission %s\n", permission)
	}
	for _, site := range decision.Sites {
		cmd.Printf("site %d\n", site)
	}
	return nil
}
