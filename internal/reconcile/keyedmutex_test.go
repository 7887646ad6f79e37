// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := newKeyedMutex()

	unlock := m.lock("u1")

	acquired := make(chan struct{})
	go func() {
		innerUnlock := m.lock("u1")
		close(acquired)
		innerUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock of the same key should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock should have been unblocked by the release")
	}
}

func TestKeyedMutexDistinctKeysDoNotBlockEachOther(t *testing.T) {
	m := newKeyedMutex()

	unlock := m.lock("u1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		otherUnlock := m.lock("u2")
		otherUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different key should not have blocked")
	}
}

func TestKeyedMutexDropsUnusedEntries(t *testing.T) {
	m := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.lock("u1")
			time.Sleep(time.Millisecond)
			unlock()
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.locks)
}
