// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// StaticUser seeds one user entry of a StaticClient.
type StaticUser struct {
	UID       string              `json:"uid"`
	NumericID int                 `json:"numericID"`
	Password  string              `json:"password"`
	Groups    []string            `json:"groups"`
	Attrs     map[string][]string `json:"attrs"`
}

// StaticClient implements Client from an in-memory table. It backs tests and
// demo deployments where no directory server is available, and is selected by
// configuration at construction time, through the same interface the live
// client implements.
type StaticClient struct {
	mu    sync.RWMutex
	users map[string]*staticUser // keyed by uid
}

type staticUser struct {
	record   *Record
	password string
	groups   []string
}

var _ Client = &StaticClient{}

func NewStaticClient(users []StaticUser) *StaticClient {
	c := &StaticClient{users: make(map[string]*staticUser, len(users))}
	for _, user := range users {
		attributes := make(map[string][]string, len(user.Attrs)+2)
		for name, values := range user.Attrs {
			attributes[name] = append([]string(nil), values...)
		}
		attributes["uid"] = []string{user.UID}
		attributes["cn"] = []string{strconv.Itoa(user.NumericID)}
		c.users[user.UID] = &staticUser{
			record: &Record{
				DN:         fmt.Sprintf("cn=%d,ou=users,dc=static", user.NumericID),
				Attributes: attributes,
			},
			password: user.Password,
			groups:   append([]string(nil), user.Groups...),
		}
	}
	return c
}

func (c *StaticClient) ByUID(_ context.Context, uid string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.users[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return user.record, nil
}

func (c *StaticClient) ByDN(_ context.Context, dn string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, user := range c.users {
		if user.record.DN == dn {
			return user.record, nil
		}
	}
	return nil, ErrNotFound
}

func (c *StaticClient) ByNumericID(ctx context.Context, id int) (*Record, error) {
	return c.ByDN(ctx, fmt.Sprintf("cn=%d,ou=users,dc=static", id))
}

func (c *StaticClient) AllByEmail(_ context.Context, email string) ([]*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var records []*Record
	for _, user := range c.users {
		for _, mail := range user.record.Attributes["mail"] {
			if mail == email {
				records = append(records, user.record)
				break
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DN < records[j].DN })
	return records, nil
}

func (c *StaticClient) GroupsOfDN(_ context.Context, dn string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, user := range c.users {
		if user.record.DN == dn {
			return append([]string(nil), user.groups...), nil
		}
	}
	return []string{}, nil
}

func (c *StaticClient) MembersOfGroup(_ context.Context, group string) ([]*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var records []*Record
	for _, user := range c.users {
		for _, candidate := range user.groups {
			if candidate == group {
				records = append(records, user.record)
				break
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DN < records[j].DN })
	return records, nil
}

func (c *StaticClient) VerifyCredential(_ context.Context, dn, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, user := range c.users {
		if user.record.DN == dn {
			return user.password == password, nil
		}
	}
	return false, nil
}

func (c *StaticClient) ChangeCredential(ctx context.Context, uid, oldPassword, newPassword string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[uid]
	if !ok || user.password != oldPassword {
		return false, nil
	}
	user.password = newPassword
	return true, nil
}

// SetGroups replaces a user's group membership. Test hook for reconciliation
// scenarios where directory state changes between runs.
func (c *StaticClient) SetGroups(uid string, groups []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user, ok := c.users[uid]; ok {
		user.groups = append([]string(nil), groups...)
	}
}

// Remove deletes a user entry. Test hook.
func (c *StaticClient) Remove(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, uid)
}
