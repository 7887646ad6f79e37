// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package identitystore persists the local side of directory identities: roles,
// sites, permission grants, and the user records bound to directory uids. It is
// read-only for role data from the core's perspective; only reconciliation
// creates, updates, or deletes identities and users.
package identitystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go.dirwarden.dev/internal/authz"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file. ":memory:" works for tests.
	Path string `json:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains database configuration.
type Config struct {
	Type     DatabaseType   `json:"type"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
}

func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "dirwarden.db"
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
}

// Store wraps the gorm handle with the operations the core needs.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(config Config) (*Store, error) {
	config.ApplyDefaults()

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		dialector = sqlite.Open(config.SQLite.Path)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type %q", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Site{},
		&Permission{},
		&PermissionGroup{},
		&Role{},
		&UserRecord{},
		&LocalIdentity{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *gorm.DB { return s.db }

// RolesByNames returns the resolver's view of every role whose name is in
// names, with site scopes, direct permissions, and group-inherited permissions
// flattened to the forms authz.Resolve consumes.
func (s *Store) RolesByNames(ctx context.Context, names []string) ([]authz.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var roles []Role
	err := s.db.WithContext(ctx).
		Preload("Sites").
		Preload("Permissions").
		Preload("Groups.Permissions").
		Where("name IN ?", names).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	resolved := make([]authz.Role, 0, len(roles))
	for _, role := range roles {
		resolved = append(resolved, authzRole(role))
	}
	return resolved, nil
}

// AllSites returns every site id.
func (s *Store) AllSites(ctx context.Context) ([]authz.SiteID, error) {
	var sites []Site
	if err := s.db.WithContext(ctx).Order("id").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	ids := make([]authz.SiteID, 0, len(sites))
	for _, site := range sites {
		ids = append(ids, authz.SiteID(site.ID))
	}
	return ids, nil
}

// GetOrCreateIdentity returns the identity bound to the directory uid, creating
// an unbound one on first sight. The uid is unique across all identities.
func (s *Store) GetOrCreateIdentity(ctx context.Context, uid string) (*LocalIdentity, error) {
	var identity LocalIdentity
	err := s.db.WithContext(ctx).
		Preload("User").
		Where(&LocalIdentity{UID: uid}).
		FirstOrCreate(&identity).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// FirstOrCreate is find-then-insert, so a concurrent first sight of the
		// same uid can win the insert. The row exists now; fetch it.
		identity = LocalIdentity{}
		err = s.db.WithContext(ctx).
			Preload("User").
			Where(&LocalIdentity{UID: uid}).
			First(&identity).Error
	}
	if err != nil {
		return nil, fmt.Errorf("get or create identity %q: %w", uid, err)
	}
	return &identity, nil
}

// EnsureUser binds a user record to the identity, creating one when no record
// matches the uid case-insensitively. New records get a placeholder credential
// and are marked active and staff. Returns whether a record was created.
func (s *Store) EnsureUser(ctx context.Context, identity *LocalIdentity) (*UserRecord, bool, error) {
	if identity.UserID != nil {
		if identity.User != nil {
			return identity.User, false, nil
		}
		var user UserRecord
		if err := s.db.WithContext(ctx).First(&user, *identity.UserID).Error; err != nil {
			return nil, false, fmt.Errorf("load user %d: %w", *identity.UserID, err)
		}
		identity.User = &user
		return &user, false, nil
	}

	var user UserRecord
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("LOWER(username) = ?", strings.ToLower(identity.UID)).First(&user).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = UserRecord{
				Username: strings.ToLower(identity.UID),
				Password: UnusablePassword,
				Active:   true,
				Staff:    true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			created = true
		default:
			return fmt.Errorf("find user by username: %w", err)
		}

		identity.UserID = &user.ID
		if err := tx.Model(&LocalIdentity{}).Where("id = ?", identity.ID).Update("user_id", user.ID).Error; err != nil {
			return fmt.Errorf("bind user to identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	identity.User = &user
	return &user, created, nil
}

// SaveUser persists mutated user attributes.
func (s *Store) SaveUser(ctx context.Context, user *UserRecord) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user %d: %w", user.ID, err)
	}
	return nil
}

// DeleteIdentity removes the identity and cascades to its bound user record,
// all in one transaction.
func (s *Store) DeleteIdentity(ctx context.Context, identity *LocalIdentity) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&LocalIdentity{}, identity.ID).Error; err != nil {
			return err
		}
		if identity.UserID != nil {
			if err := tx.Delete(&UserRecord{}, *identity.UserID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete identity %q: %w", identity.UID, err)
	}
	return nil
}

// AllIdentities lists every identity with its bound user, for the batch sweep.
func (s *Store) AllIdentities(ctx context.Context) ([]LocalIdentity, error) {
	var identities []LocalIdentity
	if err := s.db.WithContext(ctx).Preload("User").Order("uid").Find(&identities).Error; err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	return identities, nil
}

func authzRole(role Role) authz.Role {
	resolved := authz.Role{Name: role.Name}
	for _, site := range role.Sites {
		resolved.Sites = append(resolved.Sites, authz.SiteID(site.ID))
	}
	for _, permission := range role.Permissions {
		resolved.DirectPermissions = append(resolved.DirectPermissions, permission.Code())
	}
	for _, group := range role.Groups {
		for _, permission := range group.Permissions {
			resolved.GroupPermissions = append(resolved.GroupPermissions, permission.Code())
		}
	}
	return resolved
}
