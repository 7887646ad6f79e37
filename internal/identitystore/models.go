// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package identitystore

import (
	"time"
)

// Site is one tenant/scoping dimension restricting a role's applicability.
type Site struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`
}

func (Site) TableName() string { return "sites" }

// Permission is one local grant in "namespace.action" form.
type Permission struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Namespace string `gorm:"not null;size:100;uniqueIndex:idx_permissions_code" json:"namespace"`
	Action    string `gorm:"not null;size:100;uniqueIndex:idx_permissions_code" json:"action"`
}

func (Permission) TableName() string { return "permissions" }

// Code returns the permission in the "namespace.action" form used everywhere
// outside the store.
func (p Permission) Code() string {
	return p.Namespace + "." + p.Action
}

// PermissionGroup bundles permissions; roles referencing a group inherit its
// permissions.
type PermissionGroup struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Permissions []Permission `gorm:"many2many:permission_group_permissions;" json:"permissions,omitempty"`
}

func (PermissionGroup) TableName() string { return "permission_groups" }

// Role is a local authorization unit whose name matches a directory group name.
// No site rows means the role is global.
type Role struct {
	ID          int64             `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"uniqueIndex;not null;size:250" json:"name"`
	Sites       []Site            `gorm:"many2many:role_sites;" json:"sites,omitempty"`
	Permissions []Permission      `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	Groups      []PermissionGroup `gorm:"many2many:role_permission_groups;" json:"groups,omitempty"`
}

func (Role) TableName() string { return "roles" }

// UnusablePassword marks a user record that can never authenticate locally.
// Authentication always flows through the directory.
const UnusablePassword = "!"

// UserRecord is the local user bound to a directory identity. It is created
// lazily on first need and mutated only by reconciliation.
type UserRecord struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:250" json:"username"`
	Surname   string    `gorm:"size:255" json:"surname,omitempty"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	Active    bool      `gorm:"default:false" json:"active"`
	Staff     bool      `gorm:"default:false" json:"staff"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserRecord) TableName() string { return "users" }

// LocalIdentity binds a directory-unique identifier to at most one user record.
// The binding is null until first needed. Deleting the bound user record must
// take the identity with it.
type LocalIdentity struct {
	ID     int64       `gorm:"primaryKey" json:"id"`
	UID    string      `gorm:"uniqueIndex;not null;size:250" json:"uid"`
	UserID *int64      `gorm:"uniqueIndex" json:"user_id,omitempty"`
	User   *UserRecord `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (LocalIdentity) TableName() string { return "local_identities" }
