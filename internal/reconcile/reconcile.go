// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package reconcile re-derives a local identity's access state from current
// directory state and applies it: updating the bound user record when the
// identity still satisfies access policy, deleting it when the identity
// disappeared from the directory or lost every satisfying role.
//
// Losing all group membership is deliberately equivalent to losing directory
// presence: authorization is strictly group-driven, so both end in deletion,
// not suspension.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.dirwarden.dev/internal/authz"
	"go.dirwarden.dev/internal/directory"
	"go.dirwarden.dev/internal/identitystore"
	"go.dirwarden.dev/internal/plog"
)

// Outcome reports what one reconciliation did.
type Outcome string

const (
	// OutcomeUpdated means the identity still satisfies policy and its user
	// record was brought in line with the directory.
	OutcomeUpdated Outcome = "updated"

	// OutcomeRemoved means the identity was deleted, together with its user
	// record, because it no longer exists in the directory or resolves to no role.
	OutcomeRemoved Outcome = "removed"

	// OutcomeDenied means a site context rejected the access without touching
	// the store: the identity keeps its roles, just not for this site.
	OutcomeDenied Outcome = "denied"
)

// Store is the slice of the identity store the engine writes through. The
// engine is the only component permitted to mutate identities and user records.
type Store interface {
	RolesByNames(ctx context.Context, names []string) ([]authz.Role, error)
	AllSites(ctx context.Context) ([]authz.SiteID, error)
	GetOrCreateIdentity(ctx context.Context, uid string) (*identitystore.LocalIdentity, error)
	EnsureUser(ctx context.Context, identity *identitystore.LocalIdentity) (*identitystore.UserRecord, bool, error)
	SaveUser(ctx context.Context, user *identitystore.UserRecord) error
	DeleteIdentity(ctx context.Context, identity *identitystore.LocalIdentity) error
	AllIdentities(ctx context.Context) ([]identitystore.LocalIdentity, error)
}

// Config holds which directory attributes feed the user record's mutable fields.
type Config struct {
	SurnameAttribute string // default "sn"
	MailAttribute    string // default "mail"
}

func (c *Config) ApplyDefaults() {
	if c.SurnameAttribute == "" {
		c.SurnameAttribute = "sn"
	}
	if c.MailAttribute == "" {
		c.MailAttribute = "mail"
	}
}

// Engine drives reconciliation. Safe for concurrent use; reconciliations of the
// same identity are serialized, distinct identities run fully in parallel.
type Engine struct {
	directory directory.Client
	store     Store
	config    Config
	locks     *keyedMutex
}

func New(directoryClient directory.Client, store Store, config Config) *Engine {
	config.ApplyDefaults()
	return &Engine{
		directory: directoryClient,
		store:     store,
		config:    config,
		locks:     newKeyedMutex(),
	}
}

// ReconcileUID reconciles the identity with the given directory uid, creating
// the local identity on first sight. Used by interactive login.
func (e *Engine) ReconcileUID(ctx context.Context, uid string, site *authz.SiteID) (Outcome, *authz.Decision, error) {
	identity, err := e.store.GetOrCreateIdentity(ctx, uid)
	if err != nil {
		return "", nil, err
	}
	return e.Reconcile(ctx, identity, site)
}

// Reconcile runs the state machine for one identity. A transport-class fault
// during lookup aborts with an error and performs no store mutation: a
// transient outage must never read as "absent" and trigger deletion.
func (e *Engine) Reconcile(ctx context.Context, identity *identitystore.LocalIdentity, site *authz.SiteID) (Outcome, *authz.Decision, error) {
	unlock := e.locks.lock(identity.UID)
	defer unlock()

	record, err := e.directory.ByUID(ctx, identity.UID)
	switch {
	case err == nil:
	case directory.IsFault(err):
		return "", nil, fmt.Errorf("lookup of %q: %w", identity.UID, err)
	default:
		// Absent from the directory.
		if err := e.remove(ctx, identity); err != nil {
			return "", nil, err
		}
		plog.Info("removed identity absent from directory", "uid", identity.UID)
		return OutcomeRemoved, nil, nil
	}

	groups, err := e.directory.GroupsOfDN(ctx, record.DN)
	if err != nil {
		return "", nil, fmt.Errorf("group lookup of %q: %w", identity.UID, err)
	}

	roles, err := e.store.RolesByNames(ctx, groups)
	if err != nil {
		return "", nil, err
	}
	if len(roles) == 0 {
		if err := e.remove(ctx, identity); err != nil {
			return "", nil, err
		}
		plog.Info("removed identity without any satisfying role", "uid", identity.UID, "groups", groups)
		return OutcomeRemoved, nil, nil
	}

	allSites, err := e.store.AllSites(ctx)
	if err != nil {
		return "", nil, err
	}

	decision := authz.Resolve(roles, allSites, groups, site)
	if decision == nil {
		// Rejected for this site only. The identity keeps access elsewhere, so
		// nothing is mutated.
		plog.Debug("identity denied for site context", "uid", identity.UID, "site", *site)
		return OutcomeDenied, nil, nil
	}

	user, created, err := e.store.EnsureUser(ctx, identity)
	if err != nil {
		return "", nil, err
	}
	if created {
		plog.Info("created user record for identity", "uid", identity.UID, "username", user.Username)
	}

	if record.HasAttr(e.config.SurnameAttribute) {
		user.Surname = record.Attr(e.config.SurnameAttribute)
	}
	if record.HasAttr(e.config.MailAttribute) {
		user.Email = record.Attr(e.config.MailAttribute)
	}
	user.Active = true
	user.Staff = true
	if err := e.store.SaveUser(ctx, user); err != nil {
		return "", nil, err
	}

	plog.Debug("updated identity from directory", "uid", identity.UID, "groups", groups)
	return OutcomeUpdated, decision, nil
}

func (e *Engine) remove(ctx context.Context, identity *identitystore.LocalIdentity) error {
	if err := e.store.DeleteIdentity(ctx, identity); err != nil {
		return fmt.Errorf("delete identity %q: %w", identity.UID, err)
	}
	return nil
}

// Sweep reconciles every local identity without a site context, emitting one
// outcome per identity. The first fault aborts the whole sweep: aborting is
// preferred over mis-reporting a transient outage as mass deletion. workers
// bounds the parallelism; values below one mean sequential.
func (e *Engine) Sweep(ctx context.Context, workers int, emit func(outcome Outcome, uid string)) error {
	identities, err := e.store.AllIdentities(ctx)
	if err != nil {
		return err
	}

	if workers < 1 {
		workers = 1
	}

	var emitMu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i := range identities {
		identity := identities[i]
		group.Go(func() error {
			outcome, _, err := e.Reconcile(ctx, &identity, nil)
			if err != nil {
				return err
			}
			emitMu.Lock()
			emit(outcome, identity.UID)
			emitMu.Unlock()
			return nil
		})
	}

	return group.Wait()
}
