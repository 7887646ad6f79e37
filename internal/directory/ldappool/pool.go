// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ldappool implements a bounded pool of bound LDAP connections, keyed by
// the (server address, bind DN, bind password) triple. A bind established for one
// identity cannot be reused for another, so each distinct triple gets its own
// sub-pool. Checkouts are expected to be short-lived: one directory query each.
package ldappool

import (
	"context"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"go.dirwarden.dev/internal/constable"
	"go.dirwarden.dev/internal/plog"
)

const (
	// ErrPoolExhausted is returned by Acquire when every connection of a sub-pool
	// stayed checked out for the whole acquire timeout. It is retryable and distinct
	// from a timeout on the directory call itself.
	ErrPoolExhausted = constable.Error("ldap connection pool exhausted")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = constable.Error("ldap connection pool closed")
)

// Conn abstracts the LDAP communication protocol (mostly for testing).
type Conn interface {
	Bind(username, password string) error

	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)

	PasswordModify(request *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error)

	IsClosing() bool

	Close() error
}

// Our Conn type is a subset of the ldap.Client interface, which is implemented by ldap.Conn.
var _ Conn = &ldap.Conn{}

// Dialer is a factory of Conn, and the resulting Conn can then be used to interact
// with the directory.
type Dialer interface {
	Dial(ctx context.Context, hostAndPort string) (Conn, error)
}

// DialerFunc makes it easy to use a func as a Dialer.
type DialerFunc func(ctx context.Context, hostAndPort string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, hostAndPort string) (Conn, error) {
	return f(ctx, hostAndPort)
}

// Key identifies one sub-pool. Two keys that differ in any field never share a
// connection, since an established bind is only valid for one identity.
type Key struct {
	Addr         string
	BindDN       string
	BindPassword string
}

// Config holds the pool policy knobs.
type Config struct {
	// Dialer creates new connections. Required.
	Dialer Dialer

	// SizePerKey bounds the number of live connections per Key. Defaults to 4.
	SizePerKey int

	// AcquireTimeout bounds how long Acquire blocks waiting for a free connection
	// before failing with ErrPoolExhausted. Defaults to 5 seconds.
	AcquireTimeout time.Duration

	// IdleGrace is how long an unused sub-pool survives before its connections are
	// closed and the sub-pool is dropped. Defaults to 5 minutes.
	IdleGrace time.Duration

	// Metrics receives pool instrumentation. Nil disables instrumentation.
	Metrics *Metrics
}

// Pool hands out bound connections and reclaims them. Safe for concurrent use.
type Pool struct {
	dialer         Dialer
	sizePerKey     int
	acquireTimeout time.Duration
	idleGrace      time.Duration
	metrics        *Metrics

	mu     sync.Mutex
	pools  map[Key]*keyPool
	closed bool

	janitorDone chan struct{}
	janitorStop chan struct{}
}

// keyPool is the per-key state. The sem channel carries one token per live or
// potential connection, so len(sem) plus idle length can never exceed the bound.
type keyPool struct {
	sem chan struct{}

	mu          sync.Mutex
	idle        []Conn
	outstanding int
	lastUse     time.Time
}

func New(config Config) *Pool {
	if config.SizePerKey <= 0 {
		config.SizePerKey = 4
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}
	if config.IdleGrace <= 0 {
		config.IdleGrace = 5 * time.Minute
	}

	p := &Pool{
		dialer:         config.Dialer,
		sizePerKey:     config.SizePerKey,
		acquireTimeout: config.AcquireTimeout,
		idleGrace:      config.IdleGrace,
		metrics:        config.Metrics,
		pools:          make(map[Key]*keyPool),
		janitorDone:    make(chan struct{}),
		janitorStop:    make(chan struct{}),
	}

	go p.janitor()

	return p
}

// Acquire returns a connection bound as key.BindDN, dialing a fresh one when no
// idle connection is available. It blocks up to the configured acquire timeout when
// the sub-pool bound is reached, then fails with ErrPoolExhausted. Context
// cancellation is honored and surfaces as the context's error.
func (p *Pool) Acquire(ctx context.Context, key Key) (*PooledConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	kp, ok := p.pools[key]
	if !ok {
		kp = &keyPool{sem: make(chan struct{}, p.sizePerKey), lastUse: time.Now()}
		p.pools[key] = kp
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case kp.sem <- struct{}{}:
	case <-timer.C:
		p.metrics.incrExhausted()
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// We hold a slot. From here on, every return path must either hand the slot to
	// a PooledConn or give it back.
	conn := kp.takeIdle(p.metrics)
	if conn == nil {
		newConn, err := p.dialAndBind(ctx, key)
		if err != nil {
			kp.giveBackSlot()
			return nil, err
		}
		conn = newConn
		p.metrics.incrOpen()
	}

	kp.mu.Lock()
	kp.outstanding++
	kp.lastUse = time.Now()
	kp.mu.Unlock()

	return &PooledConn{Conn: conn, pool: p, key: key, kp: kp}, nil
}

// DialDirect creates a non-pooled, unbound connection. Used for credential
// verification binds, which must never share a pooled service-level bind.
func (p *Pool) DialDirect(ctx context.Context, addr string) (Conn, error) {
	return p.dialer.Dial(ctx, addr)
}

// Close stops the janitor and closes all idle connections. Outstanding checkouts
// are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pools := p.pools
	p.pools = make(map[Key]*keyPool)
	p.mu.Unlock()

	close(p.janitorStop)
	<-p.janitorDone

	for _, kp := range pools {
		kp.closeIdle(p.metrics)
	}
}

func (p *Pool) dialAndBind(ctx context.Context, key Key) (Conn, error) {
	conn, err := p.dialer.Dial(ctx, key.Addr)
	if err != nil {
		return nil, err
	}
	// The pool, not the caller, establishes the service-level bind.
	if err := conn.Bind(key.BindDN, key.BindPassword); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (p *Pool) release(kp *keyPool, key Key, conn Conn, discard bool) {
	// A sub-pool can be reaped while this checkout was in flight. Idling the
	// connection back into the orphaned sub-pool would leak the socket, so a
	// connection only goes back to the map's current entry for its key.
	p.mu.Lock()
	dead := p.closed || p.pools[key] != kp
	p.mu.Unlock()

	kp.mu.Lock()
	kp.outstanding--
	kp.lastUse = time.Now()
	if discard || dead || conn.IsClosing() {
		_ = conn.Close()
		p.metrics.decrOpen()
		if discard {
			p.metrics.incrDiscarded()
		}
	} else {
		kp.idle = append(kp.idle, conn)
	}
	kp.mu.Unlock()

	<-kp.sem
}

func (p *Pool) janitor() {
	defer close(p.janitorDone)

	interval := p.idleGrace / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.janitorStop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle drops sub-pools that have not been used for the idle grace period,
// closing their connections so sockets do not leak.
func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.idleGrace)

	p.mu.Lock()
	var reaped []*keyPool
	for key, kp := range p.pools {
		kp.mu.Lock()
		expired := kp.outstanding == 0 && kp.lastUse.Before(cutoff)
		kp.mu.Unlock()
		if expired {
			reaped = append(reaped, kp)
			delete(p.pools, key)
			plog.Debug("reaped idle ldap sub-pool", "addr", key.Addr, "bindDN", key.BindDN)
		}
	}
	p.mu.Unlock()

	for _, kp := range reaped {
		kp.closeIdle(p.metrics)
	}
}

func (kp *keyPool) takeIdle(metrics *Metrics) Conn {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	for len(kp.idle) > 0 {
		conn := kp.idle[len(kp.idle)-1]
		kp.idle = kp.idle[:len(kp.idle)-1]
		if conn.IsClosing() {
			_ = conn.Close()
			metrics.decrOpen()
			continue
		}
		return conn
	}
	return nil
}

func (kp *keyPool) giveBackSlot() {
	<-kp.sem
}

func (kp *keyPool) closeIdle(metrics *Metrics) {
	kp.mu.Lock()
	idle := kp.idle
	kp.idle = nil
	kp.mu.Unlock()
	for _, conn := range idle {
		_ = conn.Close()
		metrics.decrOpen()
	}
}

// PooledConn is a checked-out connection. It must be released exactly once and
// must not be shared between concurrent callers.
type PooledConn struct {
	Conn

	pool *Pool
	key  Key
	kp   *keyPool

	releaseOnce sync.Once
}

// Release returns the connection to the pool. Pass discard=true when the
// connection failed a protocol-level operation; discarded connections are closed
// and lazily replaced on a later Acquire.
func (c *PooledConn) Release(discard bool) {
	c.releaseOnce.Do(func() {
		c.pool.release(c.kp, c.key, c.Conn, discard)
	})
}
