// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	m "github.com/ethersphere/raffle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Entries          prometheus.Counter
	RevertedEntries  prometheus.Counter
	UpkeepsPerformed prometheus.Counter
	WinnersPicked    prometheus.Counter
	Players          prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "raffle"

	return metrics{
		Entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "entries_total",
			Help:      "Total number of accepted entries.",
		}),
		RevertedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "reverted_entries_total",
			Help:      "Total number of rejected entries.",
		}),
		UpkeepsPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upkeeps_performed_total",
			Help:      "Total number of winner requests.",
		}),
		WinnersPicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "winners_picked_total",
			Help:      "Total number of completed cycles.",
		}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "players",
			Help:      "Number of players in the current cycle.",
		}),
	}
}

func (r *Raffle) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(r.metrics)
}
