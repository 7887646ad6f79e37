// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ldappool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments one Pool. All methods are safe on a nil receiver so that
// instrumentation stays optional.
type Metrics struct {
	openConnections prometheus.Gauge
	exhausted       prometheus.Counter
	discarded       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		openConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dirwarden_ldappool_open_connections",
			Help: "Current number of live pooled LDAP connections across all keys.",
		}),
		exhausted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dirwarden_ldappool_exhausted_total",
			Help: "Number of acquires that timed out waiting for a free connection.",
		}),
		discarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dirwarden_ldappool_discarded_total",
			Help: "Number of connections discarded on release after a failed liveness check.",
		}),
	}
}

func (m *Metrics) incrOpen() {
	if m != nil {
		m.openConnections.Inc()
	}
}

func (m *Metrics) decrOpen() {
	if m != nil {
		m.openConnections.Dec()
	}
}

func (m *Metrics) incrExhausted() {
	if m != nil {
		m.exhausted.Inc()
	}
}

func (m *Metrics) incrDiscarded() {
	if m != nil {
		m.discarded.Inc()
	}
}
