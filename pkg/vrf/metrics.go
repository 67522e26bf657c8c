// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vrf

import (
	m "github.com/ethersphere/raffle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Subscriptions     prometheus.Counter
	Requests          prometheus.Counter
	Fulfillments      prometheus.Counter
	FulfillmentErrors prometheus.Counter
	FailedCallbacks   prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "vrf_coordinator"

	return metrics{
		Subscriptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_total",
			Help:      "Total number of created subscriptions.",
		}),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of random words requests.",
		}),
		Fulfillments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "fulfillments_total",
			Help:      "Total number of committed fulfillments.",
		}),
		FulfillmentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "fulfillment_errors_total",
			Help:      "Total number of reverted fulfillments.",
		}),
		FailedCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "failed_callbacks_total",
			Help:      "Total number of consumer callbacks that reverted.",
		}),
	}
}

func (c *Coordinator) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}

type fulfillerMetrics struct {
	RequestsSeen    prometheus.Counter
	Fulfilled       prometheus.Counter
	Errors          prometheus.Counter
	PendingRequests prometheus.Gauge
}

func newFulfillerMetrics() fulfillerMetrics {
	subsystem := "vrf_fulfiller"

	return fulfillerMetrics{
		RequestsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "requests_seen_total",
			Help:      "Total number of observed random words requests.",
		}),
		Fulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "fulfilled_total",
			Help:      "Total number of requests answered.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of failed fulfillment attempts.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "pending_requests",
			Help:      "Number of requests waiting for confirmations.",
		}),
	}
}

func (f *Fulfiller) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(f.metrics)
}
