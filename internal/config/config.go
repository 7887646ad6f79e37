// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the dirwarden configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"go.dirwarden.dev/internal/constable"
	"go.dirwarden.dev/internal/directory"
	"go.dirwarden.dev/internal/endpointaddr"
	"go.dirwarden.dev/internal/identitystore"
	"go.dirwarden.dev/internal/plog"
)

// TLSConfig selects ldaps and optionally pins the trusted CA bundle.
type TLSConfig struct {
	// Enabled selects ldaps. The default port changes from 389 to 636.
	Enabled bool `json:"enabled"`

	// CABundlePath points at a PEM bundle to trust instead of the system roots.
	CABundlePath string `json:"caBundlePath"`
}

// AttributesConfig names the directory schema attributes. Every field has a
// default matching a stock groupOfNames deployment.
type AttributesConfig struct {
	UID       string `json:"uid"`       // default "uid"
	NumericID string `json:"numericID"` // default "cn"
	Surname   string `json:"surname"`   // default "sn"
	Mail      string `json:"mail"`      // default "mail"
	Member    string `json:"member"`    // default "member"
	MemberOf  string `json:"memberOf"`  // default "memberOf"
	GroupName string `json:"groupName"` // default "cn"
}

// DirectoryConfig describes the upstream directory server, or, when Static is
// non-empty, an in-memory substitute for it.
type DirectoryConfig struct {
	// Addr is "host" or "host:port". The port defaults per TLS.
	Addr string `json:"addr"`

	TLS TLSConfig `json:"tls"`

	// BindDN and BindPassword are the service account used for queries.
	BindDN       string `json:"bindDN"`
	BindPassword string `json:"bindPassword"`

	UsersBase  string `json:"usersBase"`
	GroupsBase string `json:"groupsBase"`

	Attributes       AttributesConfig `json:"attributes"`
	GroupObjectClass string           `json:"groupObjectClass"` // default "groupOfNames"

	// LookupTimeout bounds point lookups, GroupTimeout bounds subtree scans.
	// Go duration strings. Defaults "1s" and "3s".
	LookupTimeout string `json:"lookupTimeout"`
	GroupTimeout  string `json:"groupTimeout"`

	// Static, when non-empty, replaces the live directory with an in-memory
	// table of users. Addr and the bind settings are then ignored. Meant for
	// demos and local development.
	Static []directory.StaticUser `json:"static"`
}

// PoolConfig tunes the connection pool in front of the live directory.
type PoolConfig struct {
	SizePerKey     int    `json:"sizePerKey"`     // default 4
	AcquireTimeout string `json:"acquireTimeout"` // default "5s"
	IdleGrace      string `json:"idleGrace"`      // default "5m"
}

// AuthzConfig tunes the access decision cache.
type AuthzConfig struct {
	CacheSize int    `json:"cacheSize"` // default 1024
	CacheTTL  string `json:"cacheTTL"`  // default "15m"
}

// Config is the root of the dirwarden configuration file.
type Config struct {
	Directory DirectoryConfig      `json:"directory"`
	Pool      PoolConfig           `json:"pool"`
	Database  identitystore.Config `json:"database"`
	Authz     AuthzConfig          `json:"authz"`

	LogLevel  plog.LogLevel `json:"logLevel"`
	LogFormat plog.Format   `json:"logFormat"` // "json" (default) or "console"
}

const (
	defaultPlaintextPort uint16 = 389
	defaultTLSPort       uint16 = 636
)

// FromPath loads a Config from a local file path, inserts defaults, verifies
// that the result is valid, and sets the global log level.
func FromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := plog.ValidateAndSetLogLevelGlobally(config.LogLevel); err != nil {
		return nil, fmt.Errorf("validate logLevel: %w", err)
	}
	if err := validateLogFormat(&config.LogFormat); err != nil {
		return nil, fmt.Errorf("validate logFormat: %w", err)
	}

	if err := validateDirectory(&config.Directory); err != nil {
		return nil, fmt.Errorf("validate directory: %w", err)
	}
	if err := validatePool(&config.Pool); err != nil {
		return nil, fmt.Errorf("validate pool: %w", err)
	}
	if err := validateAuthz(&config.Authz); err != nil {
		return nil, fmt.Errorf("validate authz: %w", err)
	}

	return &config, nil
}

func validateLogFormat(format *plog.Format) error {
	switch *format {
	case "":
		*format = plog.FormatJSON
		return nil
	case plog.FormatJSON, plog.FormatConsole:
		return nil
	default:
		return fmt.Errorf("invalid log format %q", *format)
	}
}

func validateDirectory(d *DirectoryConfig) error {
	if _, err := parseDurationDefault(d.LookupTimeout, time.Second); err != nil {
		return fmt.Errorf("lookupTimeout: %w", err)
	}
	if _, err := parseDurationDefault(d.GroupTimeout, 3*time.Second); err != nil {
		return fmt.Errorf("groupTimeout: %w", err)
	}

	// The static table stands in for the whole server, so none of the server
	// settings are required alongside it.
	if len(d.Static) > 0 {
		for i, u := range d.Static {
			if u.UID == "" {
				return fmt.Errorf("static[%d]: missing uid", i)
			}
		}
		return nil
	}

	if d.Addr == "" {
		return constable.Error("missing addr")
	}
	hostPort, err := endpointaddr.Parse(d.Addr, defaultDirectoryPort(d.TLS.Enabled))
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	d.Addr = hostPort.Endpoint()

	if d.BindDN == "" {
		return constable.Error("missing bindDN")
	}
	if d.UsersBase == "" {
		return constable.Error("missing usersBase")
	}
	if d.GroupsBase == "" {
		return constable.Error("missing groupsBase")
	}
	if d.TLS.CABundlePath != "" {
		if _, err := os.Stat(d.TLS.CABundlePath); err != nil {
			return fmt.Errorf("tls.caBundlePath: %w", err)
		}
	}
	return nil
}

func defaultDirectoryPort(useTLS bool) uint16 {
	if useTLS {
		return defaultTLSPort
	}
	return defaultPlaintextPort
}

func validatePool(p *PoolConfig) error {
	if p.SizePerKey < 0 {
		return constable.Error("sizePerKey must not be negative")
	}
	if _, err := parseDurationDefault(p.AcquireTimeout, 0); err != nil {
		return fmt.Errorf("acquireTimeout: %w", err)
	}
	if _, err := parseDurationDefault(p.IdleGrace, 0); err != nil {
		return fmt.Errorf("idleGrace: %w", err)
	}
	return nil
}

func validateAuthz(a *AuthzConfig) error {
	if a.CacheSize < 0 {
		return constable.Error("cacheSize must not be negative")
	}
	if _, err := parseDurationDefault(a.CacheTTL, 0); err != nil {
		return fmt.Errorf("cacheTTL: %w", err)
	}
	return nil
}

// parseDurationDefault parses a Go duration string, mapping "" to def and
// rejecting negative values.
func parseDurationDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, constable.Error("must not be negative")
	}
	return d, nil
}
