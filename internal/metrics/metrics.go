// Copyright 2015 Light Code Labs, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides a Prometheus-backed implementation of
// fastcgi.MetricsSink, the counters a Conn reports connection and request
// lifecycle events to (spec §11, DOMAIN STACK).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the fastcgi.MetricsSink implementation wired into
// cmd/fcgid. Its fields are exported Prometheus collectors so a caller can
// register a Registry on its own prometheus.Registerer as well as pass it
// directly to fastcgi.ListenerConfig.Metrics.
type Registry struct {
	ConnectionsOpened prometheus.Counter
	ConnectionsActive prometheus.Gauge
	RequestsHandled   prometheus.Counter
	BytesWrittenTotal prometheus.Counter
}

// NewRegistry builds a Registry with collectors named under the
// "fcgid_fastcgi" namespace and registers them on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ConnectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fcgid",
			Subsystem: "fastcgi",
			Name:      "connections_opened_total",
			Help:      "Total FastCGI connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fcgid",
			Subsystem: "fastcgi",
			Name:      "connections_active",
			Help:      "FastCGI connections currently being served.",
		}),
		RequestsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fcgid",
			Subsystem: "fastcgi",
			Name:      "requests_handled_total",
			Help:      "Total FastCGI requests dispatched to the application handler.",
		}),
		BytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fcgid",
			Subsystem: "fastcgi",
			Name:      "response_bytes_written_total",
			Help:      "Total bytes written in record payloads (STDOUT, STDERR, END_REQUEST, GetValuesResult).",
		}),
	}
	reg.MustRegister(r.ConnectionsOpened, r.ConnectionsActive, r.RequestsHandled, r.BytesWrittenTotal)
	return r
}

// ConnectionOpened implements fastcgi.MetricsSink.
func (r *Registry) ConnectionOpened() {
	r.ConnectionsOpened.Inc()
	r.ConnectionsActive.Inc()
}

// ConnectionClosed implements fastcgi.MetricsSink.
func (r *Registry) ConnectionClosed() {
	r.ConnectionsActive.Dec()
}

// RequestHandled implements fastcgi.MetricsSink.
func (r *Registry) RequestHandled() {
	r.RequestsHandled.Inc()
}

// BytesWritten implements fastcgi.MetricsSink.
func (r *Registry) BytesWritten(n int) {
	r.BytesWrittenTotal.Add(float64(n))
}
