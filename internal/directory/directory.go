// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package directory implements the query and bind vocabulary against the
// membership directory. The live implementation speaks LDAP through a bounded
// connection pool; a static implementation backs tests and offline deployments.
package directory

import (
	"context"
	"strconv"
)

// Record is the result of one directory lookup: the entry's distinguished name
// plus its attributes. Multi-valued attributes are common; by convention the
// first value carries single-valued semantics such as surname and mail.
// Records are immutable and never persisted verbatim.
type Record struct {
	DN         string
	Attributes map[string][]string
}

// Attr returns the first value of the named attribute, or "" when absent.
func (r *Record) Attr(name string) string {
	values := r.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HasAttr reports whether the record carries at least one value for name.
func (r *Record) HasAttr(name string) bool {
	return len(r.Attributes[name]) > 0
}

// Client is the fixed operation set against the directory. Implementations:
// LiveClient (LDAP) and StaticClient (in-memory double). The implementation is
// chosen by configuration at construction time.
//
// Expected "no match" outcomes are ErrNotFound or empty results; invalid
// credentials are boolean results. Timeouts, transport failures and pool
// exhaustion propagate as errors and must not be conflated with either.
type Client interface {
	// ByUID finds the single user entry with the given login identifier.
	// Zero matches and multiple matches both yield ErrNotFound.
	ByUID(ctx context.Context, uid string) (*Record, error)

	// ByDN reads one entry directly by distinguished name.
	ByDN(ctx context.Context, dn string) (*Record, error)

	// ByNumericID finds the user entry whose DN is derived from the numeric
	// member id by the configured template.
	ByNumericID(ctx context.Context, id int) (*Record, error)

	// AllByEmail returns every user entry carrying the given mail address, in
	// directory order, possibly none.
	AllByEmail(ctx context.Context, email string) ([]*Record, error)

	// GroupsOfDN returns the names of all groups that list dn as a member.
	// An entry belonging to no group yields an empty slice, not an error.
	GroupsOfDN(ctx context.Context, dn string) ([]string, error)

	// MembersOfGroup returns the user entries belonging to the named group.
	MembersOfGroup(ctx context.Context, group string) ([]*Record, error)

	// VerifyCredential attempts a bind as dn with the given password on a
	// dedicated, non-pooled connection. Invalid credentials yield (false, nil);
	// any other directory-level failure is an error, so callers can distinguish
	// "wrong password" from "directory unreachable".
	VerifyCredential(ctx context.Context, dn, password string) (bool, error)

	// ChangeCredential re-binds as the user identified by uid using oldPassword
	// and requests a password change. Invalid credentials at either step yield
	// (false, nil), never an error.
	ChangeCredential(ctx context.Context, uid, oldPassword, newPassword string) (bool, error)
}

// MemberAttributes returns the mail address and surname of the member with the
// given numeric id, or ErrNotFound.
func MemberAttributes(ctx context.Context, c Client, id int, mailAttr, surnameAttr string) (mail, surname string, err error) {
	record, err := c.ByNumericID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return record.Attr(mailAttr), record.Attr(surnameAttr), nil
}

// MemberID is one numeric member id with the member's surname, as produced by
// NumericIDsByEmail.
type MemberID struct {
	ID      int
	Surname string
}

// NumericIDsByEmail lists the numeric ids of all members registered under the
// given mail address. Entries whose id attribute is not numeric are skipped.
func NumericIDsByEmail(ctx context.Context, c Client, email, idAttr, surnameAttr string) ([]MemberID, error) {
	records, err := c.AllByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var ids []MemberID
	for _, record := range records {
		id, err := strconv.Atoi(record.Attr(idAttr))
		if err != nil {
			continue
		}
		ids = append(ids, MemberID{ID: id, Surname: record.Attr(surnameAttr)})
	}
	return ids, nil
}
