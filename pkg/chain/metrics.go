// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	m "github.com/ethersphere/raffle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Transactions         prometheus.Counter
	RevertedTransactions prometheus.Counter
	Logs                 prometheus.Counter
	BlockNumber          prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "chain"

	return metrics{
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "transactions_total",
			Help:      "Total number of mined transactions.",
		}),
		RevertedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "reverted_transactions_total",
			Help:      "Total number of reverted transactions.",
		}),
		Logs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "logs_total",
			Help:      "Total number of committed logs.",
		}),
		BlockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "block_number",
			Help:      "Number of the latest block.",
		}),
	}
}

func (b *Backend) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(b.metrics)
}
