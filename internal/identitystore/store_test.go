// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package identitystore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go.dirwarden.dev/internal/authz"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: ":memory:"}})
	require.NoError(t, err)
	return store
}

func seedRoles(t *testing.T, store *Store) {
	t.Helper()

	site1 := Site{Name: "site-one"}
	site2 := Site{Name: "site-two"}
	require.NoError(t, store.DB().Create(&site1).Error)
	require.NoError(t, store.DB().Create(&site2).Error)

	manage := Permission{Namespace: "site", Action: "manage"}
	edit := Permission{Namespace: "content", Action: "edit"}
	view := Permission{Namespace: "content", Action: "view"}
	require.NoError(t, store.DB().Create(&manage).Error)
	require.NoError(t, store.DB().Create(&edit).Error)
	require.NoError(t, store.DB().Create(&view).Error)

	viewers := PermissionGroup{Name: "viewers", Permissions: []Permission{view}}
	require.NoError(t, store.DB().Create(&viewers).Error)

	admin := Role{Name: "admin", Permissions: []Permission{manage}}
	editor := Role{
		Name:        "editor",
		Sites:       []Site{site1},
		Permissions: []Permission{edit},
		Groups:      []PermissionGroup{viewers},
	}
	require.NoError(t, store.DB().Create(&admin).Error)
	require.NoError(t, store.DB().Create(&editor).Error)
}

func TestRolesByNames(t *testing.T) {
	store := newTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	roles, err := store.RolesByNames(ctx, []string{"editor", "no-such-role"})
	require.NoError(t, err)
	require.Len(t, roles, 1)

	editor := roles[0]
	require.Equal(t, "editor", editor.Name)
	require.Len(t, editor.Sites, 1)
	require.Equal(t, []string{"content.edit"}, editor.DirectPermissions)
	require.Equal(t, []string{"content.view"}, editor.GroupPermissions)
	require.False(t, editor.IsGlobal())
}

func TestRolesByNamesGlobalRoleHasNoSites(t *testing.T) {
	store := newTestStore(t)
	seedRoles(t, store)

	roles, err := store.RolesByNames(context.Background(), []string{"admin"})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.True(t, roles[0].IsGlobal())
	require.Equal(t, []string{"site.manage"}, roles[0].DirectPermissions)
}

func TestRolesByNamesEmptyInput(t *testing.T) {
	store := newTestStore(t)
	seedRoles(t, store)

	roles, err := store.RolesByNames(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestAllSites(t *testing.T) {
	store := newTestStore(t)
	seedRoles(t, store)

	sites, err := store.AllSites(context.Background())
	require.NoError(t, err)
	require.Equal(t, []authz.SiteID{1, 2}, sites)
}

func TestGetOrCreateIdentityIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, "jdoe", first.UID)
	require.Nil(t, first.UserID)

	second, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateIdentitySurvivesLosingACreateRace(t *testing.T) {
	// File-backed so a second connection sees the same database.
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := Open(Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)

	// FirstOrCreate is find-then-insert. Slip a commit of the same uid in
	// between, the way a concurrent first login would.
	var raced bool
	require.NoError(t, store.DB().Callback().Create().Before("gorm:create").Register("concurrentFirstLogin", func(tx *gorm.DB) {
		if raced || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "local_identities" {
			return
		}
		raced = true
		require.NoError(t, store.DB().Session(&gorm.Session{NewDB: true}).Create(&LocalIdentity{UID: "jdoe"}).Error)
	}))
	defer func() {
		require.NoError(t, store.DB().Callback().Create().Remove("concurrentFirstLogin"))
	}()

	identity, err := store.GetOrCreateIdentity(context.Background(), "jdoe")
	require.NoError(t, err)
	require.True(t, raced)
	require.Equal(t, "jdoe", identity.UID)

	var count int64
	require.NoError(t, store.DB().Model(&LocalIdentity{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEnsureUserCreatesPlaceholderRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.GetOrCreateIdentity(ctx, "JDoe")
	require.NoError(t, err)

	user, created, err := store.EnsureUser(ctx, identity)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "jdoe", user.Username)
	require.Equal(t, UnusablePassword, user.Password)
	require.True(t, user.Active)
	require.True(t, user.Staff)
	require.NotNil(t, identity.UserID)

	// A second call binds the same record instead of creating another.
	again, created, err := store.EnsureUser(ctx, identity)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, user.ID, again.ID)
}

func TestEnsureUserMatchesExistingUsernameCaseInsensitively(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := UserRecord{Username: "JDoe", Password: UnusablePassword, Active: true}
	require.NoError(t, store.DB().Create(&existing).Error)

	identity, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)

	user, created, err := store.EnsureUser(ctx, identity)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, existing.ID, user.ID)
	require.Equal(t, "JDoe", user.Username)
}

func TestDeleteIdentityCascadesToUserRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	_, _, err = store.EnsureUser(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, store.DeleteIdentity(ctx, identity))

	identities, err := store.AllIdentities(ctx)
	require.NoError(t, err)
	require.Empty(t, identities)

	var count int64
	require.NoError(t, store.DB().Model(&UserRecord{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteIdentityWithoutBoundUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	require.NoError(t, store.DeleteIdentity(ctx, identity))

	identities, err := store.AllIdentities(ctx)
	require.NoError(t, err)
	require.Empty(t, identities)
}

func TestAllIdentitiesPreloadsUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.GetOrCreateIdentity(ctx, "b-user")
	require.NoError(t, err)
	_, _, err = store.EnsureUser(ctx, identity)
	require.NoError(t, err)
	_, err = store.GetOrCreateIdentity(ctx, "a-user")
	require.NoError(t, err)

	identities, err := store.AllIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, identities, 2)
	require.Equal(t, "a-user", identities[0].UID)
	require.Nil(t, identities[0].User)
	require.Equal(t, "b-user", identities[1].UID)
	require.NotNil(t, identities[1].User)
}

func TestSaveUserPersistsAttributeUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.GetOrCreateIdentity(ctx, "jdoe")
	require.NoError(t, err)
	user, _, err := store.EnsureUser(ctx, identity)
	require.NoError(t, err)

	user.Surname = "Doe"
	user.Email = "d@x.test"
	require.NoError(t, store.SaveUser(ctx, user))

	var reloaded UserRecord
	require.NoError(t, store.DB().First(&reloaded, user.ID).Error)
	require.Equal(t, "Doe", reloaded.Surname)
	require.Equal(t, "d@x.test", reloaded.Email)
}
