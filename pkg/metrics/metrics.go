// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
var Namespace = "raffle"

// Collector is implemented by every service that exposes prometheus metrics.
type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields returns all exported and initialized
// prometheus collectors found in the fields of the struct i.
func PrometheusCollectorsFromFields(i interface{}) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}

// NewRegistry returns a registry with the go runtime and process collectors
// and the collectors of every given service registered.
func NewRegistry(services ...Collector) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: Namespace,
	})); err != nil {
		return nil, err
	}

	for _, s := range services {
		if s == nil {
			continue
		}
		for _, c := range s.Metrics() {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return registry, nil
}
