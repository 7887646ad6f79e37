// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ldappool

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// NetDialer dials real LDAP servers, with TLS when a CA bundle is given or TLS is
// requested, plaintext otherwise. The go-ldap library does not support dialing
// with a context.Context, so we drive the net dial ourselves, heavily inspired by
// ldap.DialURL.
type NetDialer struct {
	// UseTLS selects ldaps. When false the connection is plaintext ldap.
	UseTLS bool

	// CABundle is a PEM bundle to trust for ldaps. Nil means the system roots.
	CABundle []byte

	// OperationTimeout is applied to every request on the resulting connection.
	// Zero means the go-ldap default.
	OperationTimeout time.Duration
}

var _ Dialer = &NetDialer{}

func (d *NetDialer) Dial(ctx context.Context, hostAndPort string) (Conn, error) {
	var c net.Conn
	var err error
	if d.UseTLS {
		c, err = d.dialTLS(ctx, hostAndPort)
	} else {
		c, err = (&net.Dialer{}).DialContext(ctx, "tcp", hostAndPort)
	}
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := ldap.NewConn(c, d.UseTLS)
	if d.OperationTimeout > 0 {
		conn.SetTimeout(d.OperationTimeout)
	}
	conn.Start()
	return conn, nil
}

func (d *NetDialer) dialTLS(ctx context.Context, hostAndPort string) (net.Conn, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if d.CABundle != nil {
		rootCAs := x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(d.CABundle) {
			return nil, fmt.Errorf("could not parse CA bundle")
		}
		tlsConfig.RootCAs = rootCAs
	}

	dialer := &tls.Dialer{Config: tlsConfig}
	return dialer.DialContext(ctx, "tcp", hostAndPort)
}
