// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-ldap/ldap/v3"

	"go.dirwarden.dev/internal/constable"
	"go.dirwarden.dev/internal/directory/ldappool"
)

const (
	// ErrNotFound means the directory has no matching record. This is an expected
	// outcome: zero matches and multiple matches for a unique-identifier lookup
	// both collapse into ErrNotFound, since a unique key should never multi-match.
	ErrNotFound = constable.Error("directory record not found")

	// ErrTimeout means the directory did not answer within the operation's budget.
	// It must never be treated as "not found" or "access denied".
	ErrTimeout = constable.Error("directory operation timed out")

	// ErrTransport means the directory connection failed at the protocol or network
	// level. The offending pooled connection is discarded by the caller.
	ErrTransport = constable.Error("directory transport failure")
)

// ErrPoolExhausted is re-exported so that callers branching on the full taxonomy
// only need this package.
const ErrPoolExhausted = ldappool.ErrPoolExhausted

// IsFault reports whether err is a genuine fault (timeout, transport, pool
// exhaustion) rather than an expected no-match outcome. Faults must propagate;
// a batch sweep must never mistake one for an absent identity.
func IsFault(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) || errors.Is(err, ErrPoolExhausted)
}

// classify maps raw go-ldap and net errors onto the package taxonomy. The original
// cause is kept in the message but not in the unwrap chain, so callers branch on
// exactly one sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return ErrNotFound
	case ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, ErrPoolExhausted), errors.Is(err, ldappool.ErrClosed):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

// discardOnRelease reports whether a pooled connection should be thrown away
// after the given operation error.
func discardOnRelease(err error) bool {
	if err == nil {
		return false
	}
	// Result-code errors such as "no such object" mean the connection is fine;
	// network-class errors mean it is not.
	if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
		return false
	}
	return true
}

func isInvalidCredentials(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials)
}
