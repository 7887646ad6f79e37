// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.dirwarden.dev/internal/authz/decisioncache"
	"go.dirwarden.dev/internal/directory"
	"go.dirwarden.dev/internal/directory/ldappool"
)

// NewDirectoryClient builds the directory client the config selects: the
// in-memory static client when static users were given, otherwise a live
// client backed by a connection pool. The returned func releases the pool and
// must be called on shutdown.
func (c *Config) NewDirectoryClient(reg prometheus.Registerer) (directory.Client, func(), error) {
	d := c.Directory
	if len(d.Static) > 0 {
		return directory.NewStaticClient(d.Static), func() {}, nil
	}

	var caBundle []byte
	if d.TLS.CABundlePath != "" {
		var err error
		caBundle, err = os.ReadFile(d.TLS.CABundlePath)
		if err != nil {
			return nil, nil, fmt.Errorf("read CA bundle: %w", err)
		}
	}

	groupTimeout := durationOrDefault(d.GroupTimeout, 3*time.Second)
	pool := ldappool.New(ldappool.Config{
		Dialer: &ldappool.NetDialer{
			UseTLS:   d.TLS.Enabled,
			CABundle: caBundle,
			// The longest single operation is a subtree scan, so its budget
			// also caps every request on the wire.
			OperationTimeout: groupTimeout,
		},
		SizePerKey:     c.Pool.SizePerKey,
		AcquireTimeout: durationOrDefault(c.Pool.AcquireTimeout, 0),
		IdleGrace:      durationOrDefault(c.Pool.IdleGrace, 0),
		Metrics:        ldappool.NewMetrics(reg),
	})

	client := directory.NewLiveClient(directory.Config{
		Addr:               d.Addr,
		BindDN:             d.BindDN,
		BindPassword:       d.BindPassword,
		UsersBase:          d.UsersBase,
		GroupsBase:         d.GroupsBase,
		UIDAttribute:       d.Attributes.UID,
		NumericIDAttribute: d.Attributes.NumericID,
		SurnameAttribute:   d.Attributes.Surname,
		MailAttribute:      d.Attributes.Mail,
		MemberAttribute:    d.Attributes.Member,
		MemberOfAttribute:  d.Attributes.MemberOf,
		GroupNameAttribute: d.Attributes.GroupName,
		GroupObjectClass:   d.GroupObjectClass,
		LookupTimeout:      durationOrDefault(d.LookupTimeout, time.Second),
		GroupTimeout:       groupTimeout,
	}, pool)

	return client, pool.Close, nil
}

// NewDecisionCache builds the access decision cache per the authz section.
func (c *Config) NewDecisionCache() *decisioncache.Cache {
	ttl := durationOrDefault(c.Authz.CacheTTL, 15*time.Minute)
	return decisioncache.New(c.Authz.CacheSize, ttl)
}

// durationOrDefault assumes s already passed validation.
func durationOrDefault(s string, def time.Duration) time.Duration {
	d, err := parseDurationDefault(s, def)
	if err != nil {
		return def
	}
	return d
}
