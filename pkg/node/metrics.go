// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"github.com/ethersphere/raffle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type nodeMetrics struct {
	// StartupDuration measures time in seconds for the deployment and the
	// services of the node to be ready
	StartupDuration prometheus.Histogram
	// SimulatedCycles counts raffle cycles driven by simulations
	SimulatedCycles prometheus.Counter
}

func newMetrics() nodeMetrics {
	subsystem := "init"

	return nodeMetrics{
		StartupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Subsystem: subsystem,
				Name:      "startup_duration_seconds",
				Help:      "Duration in seconds for the node startup to complete",
			},
		),
		SimulatedCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: subsystem,
				Name:      "simulated_cycles_total",
				Help:      "Number of simulated raffle cycles",
			},
		),
	}
}

func (n *Node) Metrics() []prometheus.Collector {
	return metrics.PrometheusCollectorsFromFields(n.metrics)
}
