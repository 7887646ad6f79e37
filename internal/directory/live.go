// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"go.dirwarden.dev/internal/directory/ldappool"
	"go.dirwarden.dev/internal/plog"
)

// Config holds the settings of the live directory client.
type Config struct {
	// Addr is the "host:port" of the directory server.
	Addr string

	// BindDN and BindPassword are the service-level bind identity used for all
	// queries. Credential verification never uses this identity.
	BindDN       string
	BindPassword string

	// UsersBase is the container searched for user entries, one level deep.
	UsersBase string

	// GroupsBase is the container searched for group entries, whole subtree.
	GroupsBase string

	// Attribute names, defaulted in ApplyDefaults.
	UIDAttribute       string // login identifier, default "uid"
	NumericIDAttribute string // numeric member id, default "cn"
	SurnameAttribute   string // default "sn"
	MailAttribute      string // default "mail"
	MemberAttribute    string // group attribute listing member DNs, default "member"
	MemberOfAttribute  string // user attribute naming group DNs, default "memberOf"
	GroupNameAttribute string // default "cn"
	GroupObjectClass   string // default "groupOfNames"

	// LookupTimeout bounds point lookups; GroupTimeout bounds subtree scans,
	// which cost more. Defaults: 1s and 3s.
	LookupTimeout time.Duration
	GroupTimeout  time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.UIDAttribute == "" {
		c.UIDAttribute = "uid"
	}
	if c.NumericIDAttribute == "" {
		c.NumericIDAttribute = "cn"
	}
	if c.SurnameAttribute == "" {
		c.SurnameAttribute = "sn"
	}
	if c.MailAttribute == "" {
		c.MailAttribute = "mail"
	}
	if c.MemberAttribute == "" {
		c.MemberAttribute = "member"
	}
	if c.MemberOfAttribute == "" {
		c.MemberOfAttribute = "memberOf"
	}
	if c.GroupNameAttribute == "" {
		c.GroupNameAttribute = "cn"
	}
	if c.GroupObjectClass == "" {
		c.GroupObjectClass = "groupOfNames"
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = time.Second
	}
	if c.GroupTimeout <= 0 {
		c.GroupTimeout = 3 * time.Second
	}
}

// LiveClient implements Client against a real directory server. It is stateless:
// every operation checks a connection out of the pool for its own duration only.
type LiveClient struct {
	config Config
	pool   *ldappool.Pool
}

var _ Client = &LiveClient{}

func NewLiveClient(config Config, pool *ldappool.Pool) *LiveClient {
	config.ApplyDefaults()
	return &LiveClient{config: config, pool: pool}
}

func (c *LiveClient) key() ldappool.Key {
	return ldappool.Key{
		Addr:         c.config.Addr,
		BindDN:       c.config.BindDN,
		BindPassword: c.config.BindPassword,
	}
}

func (c *LiveClient) ByUID(ctx context.Context, uid string) (*Record, error) {
	// The uid is end-user input, so it must be escaped before being included in a
	// search filter to prevent query injection.
	filter := fmt.Sprintf("(%s=%s)", c.config.UIDAttribute, ldap.EscapeFilter(uid))
	return c.searchOne(ctx, &ldap.SearchRequest{
		BaseDN:       c.config.UsersBase,
		Scope:        ldap.ScopeSingleLevel,
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    2,
		TimeLimit:    timeLimitSeconds(c.config.LookupTimeout),
		Filter:       filter,
	}, "uid", uid)
}

func (c *LiveClient) ByDN(ctx context.Context, dn string) (*Record, error) {
	return c.searchOne(ctx, &ldap.SearchRequest{
		BaseDN:       dn,
		Scope:        ldap.ScopeBaseObject,
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    2,
		TimeLimit:    timeLimitSeconds(c.config.LookupTimeout),
		Filter:       "(objectClass=*)",
	}, "dn", dn)
}

func (c *LiveClient) ByNumericID(ctx context.Context, id int) (*Record, error) {
	dn := fmt.Sprintf("%s=%d,%s", c.config.NumericIDAttribute, id, c.config.UsersBase)
	return c.ByDN(ctx, dn)
}

func (c *LiveClient) AllByEmail(ctx context.Context, email string) ([]*Record, error) {
	filter := fmt.Sprintf("(%s=%s)", c.config.MailAttribute, ldap.EscapeFilter(email))
	result, err := c.search(ctx, &ldap.SearchRequest{
		BaseDN:       c.config.UsersBase,
		Scope:        ldap.ScopeSingleLevel,
		DerefAliases: ldap.NeverDerefAliases,
		TimeLimit:    timeLimitSeconds(c.config.LookupTimeout),
		Filter:       filter,
	})
	if err != nil {
		return nil, err
	}
	return recordsFromEntries(result.Entries), nil
}

func (c *LiveClient) GroupsOfDN(ctx context.Context, dn string) ([]string, error) {
	filter := fmt.Sprintf("(&(objectClass=%s)(%s=%s))",
		ldap.EscapeFilter(c.config.GroupObjectClass),
		c.config.MemberAttribute,
		ldap.EscapeFilter(dn),
	)
	result, err := c.search(ctx, &ldap.SearchRequest{
		BaseDN:       c.config.GroupsBase,
		Scope:        ldap.ScopeWholeSubtree,
		DerefAliases: ldap.NeverDerefAliases,
		TimeLimit:    timeLimitSeconds(c.config.GroupTimeout),
		Filter:       filter,
		Attributes:   []string{c.config.GroupNameAttribute},
	})
	if err != nil {
		return nil, err
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if name := entry.GetAttributeValue(c.config.GroupNameAttribute); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}

func (c *LiveClient) MembersOfGroup(ctx context.Context, group string) ([]*Record, error) {
	// The group name becomes a DN component first and a filter value second, so
	// it needs DN escaping here and the composed DN gets filter-escaped once.
	groupDN := fmt.Sprintf("%s=%s,%s", c.config.GroupNameAttribute, ldap.EscapeDN(group), c.config.GroupsBase)
	filter := fmt.Sprintf("(%s=%s)", c.config.MemberOfAttribute, ldap.EscapeFilter(groupDN))
	result, err := c.search(ctx, &ldap.SearchRequest{
		BaseDN:       c.config.UsersBase,
		Scope:        ldap.ScopeSingleLevel,
		DerefAliases: ldap.NeverDerefAliases,
		TimeLimit:    timeLimitSeconds(c.config.GroupTimeout),
		Filter:       filter,
	})
	if err != nil {
		return nil, err
	}
	return recordsFromEntries(result.Entries), nil
}

func (c *LiveClient) VerifyCredential(ctx context.Context, dn, password string) (bool, error) {
	if password == "" {
		// The protocol would treat this as an anonymous bind, not a verification.
		return false, nil
	}

	// Deliberately not pooled: this bind runs as the end user, and a connection
	// bound as the end user must never serve service-level queries.
	conn, err := c.pool.DialDirect(ctx, c.config.Addr)
	if err != nil {
		return false, classify(err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.Bind(dn, password)
	switch {
	case err == nil:
		return true, nil
	case isInvalidCredentials(err):
		plog.Debug("credential verification failed", "dn", dn)
		return false, nil
	default:
		return false, classify(err)
	}
}

func (c *LiveClient) ChangeCredential(ctx context.Context, uid, oldPassword, newPassword string) (bool, error) {
	record, err := c.ByUID(ctx, uid)
	switch {
	case err == nil:
	case IsFault(err):
		return false, err
	default:
		// An unknown identifier is denial, not a fault.
		return false, nil
	}

	conn, err := c.pool.DialDirect(ctx, c.config.Addr)
	if err != nil {
		return false, classify(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Bind(record.DN, oldPassword); err != nil {
		if isInvalidCredentials(err) {
			return false, nil
		}
		return false, classify(err)
	}

	if _, err := conn.PasswordModify(ldap.NewPasswordModifyRequest(record.DN, oldPassword, newPassword)); err != nil {
		if isInvalidCredentials(err) {
			return false, nil
		}
		return false, classify(err)
	}

	plog.Info("changed directory credential", "uid", uid)
	return true, nil
}

// searchOne runs a unique-identifier lookup: exactly one match or ErrNotFound.
// Multiple matches are logged so data-quality problems stay visible, but the
// caller contract stays "not found".
func (c *LiveClient) searchOne(ctx context.Context, request *ldap.SearchRequest, idKind, id string) (*Record, error) {
	result, err := c.search(ctx, request)
	if err != nil {
		return nil, err
	}

	switch len(result.Entries) {
	case 1:
		return recordFromEntry(result.Entries[0]), nil
	case 0:
		return nil, ErrNotFound
	default:
		plog.Warning("unique-identifier lookup matched multiple entries", idKind, id, "matches", len(result.Entries))
		return nil, ErrNotFound
	}
}

func (c *LiveClient) search(ctx context.Context, request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	pooled, err := c.pool.Acquire(ctx, c.key())
	if err != nil {
		return nil, classify(err)
	}

	result, err := pooled.Search(request)
	pooled.Release(discardOnRelease(err))
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func recordFromEntry(entry *ldap.Entry) *Record {
	attributes := make(map[string][]string, len(entry.Attributes))
	for _, attribute := range entry.Attributes {
		attributes[attribute.Name] = attribute.Values
	}
	return &Record{DN: entry.DN, Attributes: attributes}
}

func recordsFromEntries(entries []*ldap.Entry) []*Record {
	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, recordFromEntry(entry))
	}
	return records
}

func timeLimitSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
