// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine activity. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	liquidations  prometheus.Counter
	healthChecks  *prometheus.CounterVec
}

// NewMetrics builds the engine collectors and registers them on reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lending_operations_total",
			Help:      "Count of lending operations by name and result kind.",
		}, []string{"op", "result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lending_compensations_total",
			Help:      "Count of operations whose ledger effects were unwound.",
		}, []string{"op"}),
		liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lending_liquidations_total",
			Help:      "Count of third-party repayments settled against unhealthy loans.",
		}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lending_health_checks_total",
			Help:      "Count of health factor evaluations by outcome.",
		}, []string{"liquidatable"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.compensations, m.liquidations, m.healthChecks)
	}
	return m
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeCompensation(op string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(op).Inc()
}

func (m *Metrics) observeLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

func (m *Metrics) observeHealthCheck(liquidatable bool) {
	if m == nil {
		return
	}
	label := "false"
	if liquidatable {
		label = "true"
	}
	m.healthChecks.WithLabelValues(label).Inc()
}
