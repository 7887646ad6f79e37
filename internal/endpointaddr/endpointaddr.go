// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package endpointaddr implements parsing and validation of "<host>[:<port>]" strings.
package endpointaddr

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// RFC 1123 subdomain: dot-separated labels of lowercase alphanumerics and dashes.
var dns1123Subdomain = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

type HostPort struct {
	// Host is the validated host part of the input, which may be a hostname or IP.
	Host string

	// Port is the validated port number, which may be defaulted.
	Port uint16
}

// Endpoint is the host:port validated from the input, where port may be a default value.
//
// This string can be passed to net.Dial.
func (h HostPort) Endpoint() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// Parse an "endpoint address" string, providing a default port. The input can be in several valid formats:
//
//   - "<hostname>"        (DNS hostname)
//   - "<IPv4>"            (IPv4 address)
//   - "<IPv6>"            (IPv6 address)
//   - "<hostname>:<port>" (DNS hostname with port)
//   - "<IPv4>:<port>"     (IPv4 address with port)
//   - "[<IPv6>]:<port>"   (IPv6 address with port, brackets are required)
//
// If the input does not specify a port number, then defaultPort will be used.
func Parse(endpoint string, defaultPort uint16) (HostPort, error) {
	// Try parsing it both with and without an implicit default port at the end.
	host, port, err := net.SplitHostPort(endpoint)

	// If we got an error parsing the raw input, try adding the default port.
	if err != nil {
		host, port, err = net.SplitHostPort(net.JoinHostPort(endpoint, strconv.Itoa(int(defaultPort))))
	}

	// Give up if there's still an error splitting the host and port.
	if err != nil {
		return HostPort{}, err
	}

	integerPort, err := strconv.Atoi(port)
	if err != nil || integerPort < 1 || integerPort > 65535 {
		return HostPort{}, fmt.Errorf("invalid port %q", port)
	}

	// Check if the host part is an IPv4 or IPv6 address or a valid hostname according to RFC 1123.
	switch {
	case net.ParseIP(host) != nil:
	case len(host) <= 253 && dns1123Subdomain.MatchString(host):
	default:
		return HostPort{}, fmt.Errorf("host %q is not a valid hostname or IP address", host)
	}

	return HostPort{Host: host, Port: uint16(integerPort)}, nil
}
