// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keeper

import (
	m "github.com/ethersphere/raffle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Checks        prometheus.Counter
	CheckErrors   prometheus.Counter
	Performs      prometheus.Counter
	PerformErrors prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "keeper"

	return metrics{
		Checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "checks_total",
			Help:      "Total number of upkeep checks.",
		}),
		CheckErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "check_errors_total",
			Help:      "Total number of failed upkeep checks.",
		}),
		Performs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "performs_total",
			Help:      "Total number of performed upkeeps.",
		}),
		PerformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "perform_errors_total",
			Help:      "Total number of reverted upkeeps.",
		}),
	}
}

func (a *Agent) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(a.metrics)
}
