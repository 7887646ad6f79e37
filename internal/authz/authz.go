// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package authz resolves directory group membership onto locally-defined roles,
// site scopes, and permission grants. Resolve is a pure function: it performs no
// I/O and takes the role store's view of the world as input.
package authz

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SiteID identifies one site (tenant) scope.
type SiteID int64

// Role is a local authorization unit. Its name matches a directory group name.
// An empty Sites set means the role is global: it grants access to all sites.
// DirectPermissions are granted by the role itself; GroupPermissions are
// inherited from permission groups the role references. Both use the
// "namespace.action" form.
type Role struct {
	Name              string
	Sites             []SiteID
	DirectPermissions []string
	GroupPermissions  []string
}

// IsGlobal reports whether the role applies to every site.
func (r Role) IsGlobal() bool {
	return len(r.Sites) == 0
}

func (r Role) allowsSite(site SiteID) bool {
	if r.IsGlobal() {
		return true
	}
	for _, s := range r.Sites {
		if s == site {
			return true
		}
	}
	return false
}

// Decision is the request/session-scoped result of one resolution. It is
// attached to the authenticated principal for one session lifetime, never
// persisted, and recomputed wholesale on invalidation, never patched.
//
// A nil *Decision means "no access" and must be treated as authentication
// failure, not as "authenticated with zero roles".
type Decision struct {
	// ID correlates this decision in the logs and keys the session cache.
	ID string

	// Groups is the directory group set the decision was derived from.
	Groups []string

	// Roles is the full set of matched roles, before any site narrowing. It is
	// the set that determines Sites.
	Roles []Role

	// EffectiveRoles is Roles narrowed to the site context: global roles plus
	// roles scoped to the requested site. Without a site context it equals Roles.
	// Permission aggregation uses this set.
	EffectiveRoles []Role

	// Sites is every site the principal may access.
	Sites []SiteID

	// Role-direct and group-inherited permissions are memoized separately: the
	// two sets have different recomputation triggers in some policy variants.
	rolePermissions  map[string]struct{}
	groupPermissions map[string]struct{}
}

// Resolve maps a directory group set onto an authorization decision.
//
// roles is the role store's answer to "which roles are named like one of these
// groups"; allSites is the full site list, needed when a global role is present;
// site is the optional request site context. A nil return means no access.
func Resolve(roles []Role, allSites []SiteID, groups []string, site *SiteID) *Decision {
	matched := matchRoles(roles, groups)
	if len(matched) == 0 {
		return nil
	}

	sites := resolveSites(matched, allSites)

	effective := matched
	if site != nil {
		if !containsSite(sites, *site) {
			return nil
		}
		effective = make([]Role, 0, len(matched))
		for _, role := range matched {
			if role.allowsSite(*site) {
				effective = append(effective, role)
			}
		}
	}

	decision := &Decision{
		ID:             uuid.NewString(),
		Groups:         append([]string(nil), groups...),
		Roles:          matched,
		EffectiveRoles: effective,
		Sites:          sites,
	}
	decision.rolePermissions = collectPermissions(effective, func(r Role) []string { return r.DirectPermissions })
	decision.groupPermissions = collectPermissions(effective, func(r Role) []string { return r.GroupPermissions })
	return decision
}

// Permissions returns the deduplicated union of role-direct and group-inherited
// permission strings, sorted for stable output.
func (d *Decision) Permissions() []string {
	if d == nil {
		return nil
	}
	union := make([]string, 0, len(d.rolePermissions)+len(d.groupPermissions))
	for permission := range d.rolePermissions {
		union = append(union, permission)
	}
	for permission := range d.groupPermissions {
		if _, ok := d.rolePermissions[permission]; !ok {
			union = append(union, permission)
		}
	}
	sort.Strings(union)
	return union
}

// GroupPermissions returns only the group-inherited permission set.
func (d *Decision) GroupPermissions() []string {
	if d == nil {
		return nil
	}
	permissions := make([]string, 0, len(d.groupPermissions))
	for permission := range d.groupPermissions {
		permissions = append(permissions, permission)
	}
	sort.Strings(permissions)
	return permissions
}

// HasPermission reports whether the decision grants the "namespace.action"
// permission. A nil decision grants nothing.
func (d *Decision) HasPermission(permission string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.rolePermissions[permission]; ok {
		return true
	}
	_, ok := d.groupPermissions[permission]
	return ok
}

// HasNamespacePermissions reports whether any granted permission lives in the
// given namespace.
func (d *Decision) HasNamespacePermissions(namespace string) bool {
	if d == nil {
		return false
	}
	prefix := namespace + "."
	for permission := range d.rolePermissions {
		if strings.HasPrefix(permission, prefix) {
			return true
		}
	}
	for permission := range d.groupPermissions {
		if strings.HasPrefix(permission, prefix) {
			return true
		}
	}
	return false
}

// AllowsSite reports whether the decision grants any access to the given site.
func (d *Decision) AllowsSite(site SiteID) bool {
	if d == nil {
		return false
	}
	return containsSite(d.Sites, site)
}

func matchRoles(roles []Role, groups []string) []Role {
	groupSet := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		groupSet[group] = struct{}{}
	}

	var matched []Role
	for _, role := range roles {
		if _, ok := groupSet[role.Name]; ok {
			matched = append(matched, role)
		}
	}
	return matched
}

// resolveSites computes the accessible site set from the unnarrowed role set:
// any global role grants all sites, otherwise the union of the roles' scopes.
func resolveSites(matched []Role, allSites []SiteID) []SiteID {
	for _, role := range matched {
		if role.IsGlobal() {
			return append([]SiteID(nil), allSites...)
		}
	}

	seen := make(map[SiteID]struct{})
	var sites []SiteID
	for _, role := range matched {
		for _, site := range role.Sites {
			if _, ok := seen[site]; ok {
				continue
			}
			seen[site] = struct{}{}
			sites = append(sites, site)
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

func collectPermissions(roles []Role, grants func(Role) []string) map[string]struct{} {
	permissions := make(map[string]struct{})
	for _, role := range roles {
		for _, permission := range grants(role) {
			permissions[permission] = struct{}{}
		}
	}
	return permissions
}

func containsSite(sites []SiteID, site SiteID) bool {
	for _, s := range sites {
		if s == site {
			return true
		}
	}
	return false
}
