// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package decisioncache keeps authorization decisions for the lifetime of a
// session. Entries expire on TTL and are evicted LRU; invalidation drops the
// whole decision, which is then recomputed wholesale on the next
// authentication, never incrementally patched.
package decisioncache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"go.dirwarden.dev/internal/authz"
)

type Cache struct {
	cache *lru.LRU[string, *authz.Decision]
}

// New creates a cache bounded to size entries with the given TTL per entry.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{cache: lru.NewLRU[string, *authz.Decision](size, nil, ttl)}
}

// Get returns the cached decision for the session key, or nil after expiry,
// eviction, or invalidation.
func (c *Cache) Get(sessionKey string) *authz.Decision {
	decision, ok := c.cache.Get(sessionKey)
	if !ok {
		return nil
	}
	return decision
}

func (c *Cache) Put(sessionKey string, decision *authz.Decision) {
	c.cache.Add(sessionKey, decision)
}

// Invalidate drops one session's decision.
func (c *Cache) Invalidate(sessionKey string) {
	c.cache.Remove(sessionKey)
}

// Purge drops everything, e.g. after a role store change.
func (c *Cache) Purge() {
	c.cache.Purge()
}
