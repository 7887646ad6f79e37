// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements interactive authentication: verify the credential
// against the directory, reconcile the local identity, and resolve the
// authorization decision for the session.
//
// Every expected failure (unknown user, bad credential, no role, wrong site)
// is a nil decision with a nil error, so callers present one uniform
// "authentication failed" to the end user; the reasons are distinguished in
// the logs only. Faults (directory unreachable, pool exhausted) are errors and
// should surface as "service unavailable", never as a normal failure.
package auth

import (
	"context"

	"go.dirwarden.dev/internal/authz"
	"go.dirwarden.dev/internal/authz/decisioncache"
	"go.dirwarden.dev/internal/directory"
	"go.dirwarden.dev/internal/plog"
	"go.dirwarden.dev/internal/reconcile"
)

type Authenticator struct {
	directory directory.Client
	engine    *reconcile.Engine
	cache     *decisioncache.Cache
}

func New(directoryClient directory.Client, engine *reconcile.Engine, cache *decisioncache.Cache) *Authenticator {
	return &Authenticator{directory: directoryClient, engine: engine, cache: cache}
}

// Login authenticates username/password with an optional site context. The
// returned decision's ID doubles as the session key for FromSession. A nil
// decision with nil error means authentication failed.
//
// The credential is verified before any reconciliation step; a failed check
// performs no store mutation.
func (a *Authenticator) Login(ctx context.Context, username, password string, site *authz.SiteID) (*authz.Decision, error) {
	record, err := a.directory.ByUID(ctx, username)
	switch {
	case err == nil:
	case directory.IsFault(err):
		return nil, err
	default:
		plog.Debug("login failed: unknown user", "username", username)
		return nil, nil
	}

	ok, err := a.directory.VerifyCredential(ctx, record.DN, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		plog.Info("login failed: invalid credential", "username", username)
		return nil, nil
	}

	outcome, decision, err := a.engine.ReconcileUID(ctx, username, site)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		plog.Info("login failed: no satisfying role", "username", username, "outcome", string(outcome))
		return nil, nil
	}

	a.cache.Put(decision.ID, decision)
	plog.Info("login succeeded", "username", username, "decision", decision.ID)
	return decision, nil
}

// FromSession returns the cached decision for a session key, or nil once it
// expired or was invalidated, in which case the caller must re-authenticate.
func (a *Authenticator) FromSession(sessionKey string) *authz.Decision {
	return a.cache.Get(sessionKey)
}

// Logout drops the session's decision.
func (a *Authenticator) Logout(sessionKey string) {
	a.cache.Invalidate(sessionKey)
}
