// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func sitePtr(site SiteID) *SiteID { return &site }

func testRoles() []Role {
	return []Role{
		{
			Name:              "admin",
			Sites:             nil, // global
			DirectPermissions: []string{"site.manage", "members.edit"},
		},
		{
			Name:              "editor",
			Sites:             []SiteID{1},
			DirectPermissions: []string{"content.edit"},
			GroupPermissions:  []string{"content.view"},
		},
		{
			Name:              "moderator",
			Sites:             []SiteID{1, 2},
			DirectPermissions: []string{"content.moderate"},
		},
	}
}

var testAllSites = []SiteID{1, 2, 3}

func TestResolveMatchesRolesByGroupName(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"editor", "unrelated-group"}, nil)
	require.NotNil(t, decision)
	require.Len(t, decision.Roles, 1)
	require.Equal(t, "editor", decision.Roles[0].Name)
	require.Equal(t, decision.Roles, decision.EffectiveRoles)
}

func TestResolveEmptyIntersectionMeansNoAccess(t *testing.T) {
	require.Nil(t, Resolve(testRoles(), testAllSites, []string{"unrelated-group"}, nil))
	require.Nil(t, Resolve(testRoles(), testAllSites, nil, nil))
	require.Nil(t, Resolve(nil, testAllSites, []string{"admin"}, nil))
}

func TestGlobalRoleGrantsAllSitesRegardlessOfOtherScopes(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"admin", "editor"}, nil)
	require.NotNil(t, decision)
	require.Equal(t, testAllSites, decision.Sites)

	// Also with a site context present.
	decision = Resolve(testRoles(), testAllSites, []string{"admin", "editor"}, sitePtr(3))
	require.NotNil(t, decision)
	require.Equal(t, testAllSites, decision.Sites)
}

func TestScopedRolesUnionTheirSites(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"editor", "moderator"}, nil)
	require.NotNil(t, decision)
	require.Equal(t, []SiteID{1, 2}, decision.Sites)
}

func TestSiteContextOutsideResolvedSitesMeansNoAccess(t *testing.T) {
	// Without a site context the same groups would grant access.
	require.NotNil(t, Resolve(testRoles(), testAllSites, []string{"editor"}, nil))

	// Site 2 is not in editor's scope.
	require.Nil(t, Resolve(testRoles(), testAllSites, []string{"editor"}, sitePtr(2)))
}

func TestSiteContextNarrowsEffectiveRolesButNotSites(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"admin", "editor", "moderator"}, sitePtr(2))
	require.NotNil(t, decision)

	// Sites is computed from the unnarrowed role set.
	require.Equal(t, testAllSites, decision.Sites)
	require.Len(t, decision.Roles, 3)

	// Effective roles keep globals and roles scoped to site 2 only.
	var names []string
	for _, role := range decision.EffectiveRoles {
		names = append(names, role.Name)
	}
	require.ElementsMatch(t, []string{"admin", "moderator"}, names)

	// Permissions aggregate over the effective set: editor's grants are gone.
	require.False(t, decision.HasPermission("content.edit"))
	require.True(t, decision.HasPermission("content.moderate"))
	require.True(t, decision.HasPermission("site.manage"))
}

func TestPermissionAggregationIsOrderIndependentAndIdempotent(t *testing.T) {
	roles := testRoles()
	groups := []string{"admin", "editor", "moderator"}

	want := Resolve(roles, testAllSites, groups, nil).Permissions()
	require.NotEmpty(t, want)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]Role(nil), roles...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		decision := Resolve(shuffled, testAllSites, groups, nil)
		require.Equal(t, want, decision.Permissions())
		// Calling again never changes the answer.
		require.Equal(t, want, decision.Permissions())
	}
}

func TestPermissionsUnionDeduplicatesAcrossDirectAndGroupGrants(t *testing.T) {
	roles := []Role{{
		Name:              "editor",
		Sites:             []SiteID{1},
		DirectPermissions: []string{"content.edit", "content.view"},
		GroupPermissions:  []string{"content.view", "content.comment"},
	}}

	decision := Resolve(roles, testAllSites, []string{"editor"}, nil)
	require.NotNil(t, decision)
	require.Equal(t, []string{"content.comment", "content.edit", "content.view"}, decision.Permissions())
	require.Equal(t, []string{"content.comment", "content.view"}, decision.GroupPermissions())
}

func TestHasNamespacePermissions(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"editor"}, nil)
	require.NotNil(t, decision)
	require.True(t, decision.HasNamespacePermissions("content"))
	require.False(t, decision.HasNamespacePermissions("site"))
	// Prefix matching is on the namespace, not on arbitrary string prefixes.
	require.False(t, decision.HasNamespacePermissions("cont"))
}

func TestNilDecisionGrantsNothing(t *testing.T) {
	var decision *Decision
	require.False(t, decision.HasPermission("site.manage"))
	require.False(t, decision.HasNamespacePermissions("site"))
	require.False(t, decision.AllowsSite(1))
	require.Nil(t, decision.Permissions())
}

func TestAllowsSite(t *testing.T) {
	decision := Resolve(testRoles(), testAllSites, []string{"moderator"}, nil)
	require.NotNil(t, decision)
	require.True(t, decision.AllowsSite(1))
	require.True(t, decision.AllowsSite(2))
	require.False(t, decision.AllowsSite(3))
}
