// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go.dirwarden.dev/internal/here"
	"go.dirwarden.dev/internal/identitystore"
)

// writeFixture lays down a config file with a static directory and a sqlite
// store, plus policy rows and pre-existing identities, then returns the config
// path.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dirwarden.db")
	cfgPath := filepath.Join(dir, "dirwarden.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte(here.Docf(`
		---
		directory:
		  static:
		  - uid: jdoe
		    numericID: 12345
		    password: secret
		    groups: ["role-admin"]
		    attrs:
		      sn: ["Doe"]
		      mail: ["jdoe@example.com"]
		database:
		  type: sqlite
		  sqlite:
		    path: %q
	`, dbPath)), 0o600))

	store, err := identitystore.Open(identitystore.Config{
		Type:   identitystore.DatabaseTypeSQLite,
		SQLite: identitystore.SQLiteConfig{Path: dbPath},
	})
	require.NoError(t, err)

	site := identitystore.Site{Name: "main"}
	require.NoError(t, store.DB().Create(&site).Error)
	require.NoError(t, store.DB().Create(&identitystore.Role{
		Name:        "role-admin",
		Permissions: []identitystore.Permission{{Namespace: "site", Action: "manage"}},
	}).Error)

	ctx := context.Background()
	_, err = store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	_, err = store.GetOrCreateIdentity(ctx, "gone")
	require.NoError(t, err)

	return cfgPath
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	cfgPath := writeFixture(t)

	out, err := runCommand(t, "", "sweep", "--config", cfgPath, "--workers", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.ElementsMatch(t, []string{"removed gone", "updated jdoe"}, lines)
}

func TestLoginCommand(t *testing.T) {
	cfgPath := writeFixture(t)

	out, err := runCommand(t, "secret\n", "login", "jdoe", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "role role-admin")
	require.Contains(t, out, "permission site.manage")
	require.Contains(t, out, "site 1")
}

func TestLoginCommandWrongPassword(t *testing.T) {
	cfgPath := writeFixture(t)

	_, err := runCommand(t, "nope\n", "login", "jdoe", "--config", cfgPath)
	require.EqualError(t, err, "access denied")
}
