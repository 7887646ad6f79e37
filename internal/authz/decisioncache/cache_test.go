// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package decisioncache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.dirwarden.dev/internal/authz"
)

func testDecision(t *testing.T) *authz.Decision {
	t.Helper()
	roles := []authz.Role{{Name: "admin", DirectPermissions: []string{"site.manage"}}}
	decision := authz.Resolve(roles, []authz.SiteID{1}, []string{"admin"}, nil)
	require.NotNil(t, decision)
	return decision
}

func TestGetReturnsWhatWasPut(t *testing.T) {
	cache := New(8, time.Minute)
	decision := testDecision(t)

	cache.Put(decision.ID, decision)
	require.Same(t, decision, cache.Get(decision.ID))
}

func TestGetMissesAfterInvalidate(t *testing.T) {
	cache := New(8, time.Minute)
	decision := testDecision(t)

	cache.Put(decision.ID, decision)
	cache.Invalidate(decision.ID)
	require.Nil(t, cache.Get(decision.ID))
}

func TestEntriesExpireOnTTL(t *testing.T) {
	cache := New(8, 20*time.Millisecond)
	decision := testDecision(t)

	cache.Put(decision.ID, decision)
	require.Eventually(t, func() bool {
		return cache.Get(decision.ID) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestUnknownKeyIsANilDecision(t *testing.T) {
	cache := New(8, time.Minute)
	require.Nil(t, cache.Get("unknown-session"))
}

func TestPurgeDropsEverything(t *testing.T) {
	cache := New(8, time.Minute)
	first, second := testDecision(t), testDecision(t)

	cache.Put(first.ID, first)
	cache.Put(second.ID, second)
	cache.Purge()
	require.Nil(t, cache.Get(first.ID))
	require.Nil(t, cache.Get(second.ID))
}
