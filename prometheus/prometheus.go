// Mgmt
// Copyright (C) 2013-2016+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package prometheus exposes engine run metrics: completed tasks, iteration
// duration, the currently active vertex count, and exchange flush activity.
package prometheus

import (
	"net/http"

	errwrap "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPrometheusListen is registered in
// https://github.com/prometheus/prometheus/wiki/Default-port-allocations
const DefaultPrometheusListen = "127.0.0.1:9233"

// Metrics is the struct that contains the engine's prometheus instruments.
// Run Init() on it before a run starts, then wire its Observe*/Inc* methods
// into the engine's per-phase hooks. Each Metrics carries its own Registry
// rather than registering into prometheus's package-level DefaultRegisterer,
// so that more than one SyncEngine (eg one per test, or one per runID in a
// long-lived process embedding gasrun) can coexist without a duplicate
// registration panic.
type Metrics struct {
	Listen string // the listen specification for the net/http server

	registry *prometheus.Registry

	completedTasksTotal  *prometheus.CounterVec
	iterationDuration    *prometheus.HistogramVec
	activeVertices       *prometheus.GaugeVec
	exchangeFlushesTotal *prometheus.CounterVec

	server *http.Server
}

// Init creates and registers the gauges and counters for one engine run,
// identified by runID so metrics from concurrently running engines in the
// same process don't collide on the "run" label.
func (obj *Metrics) Init() error {
	if len(obj.Listen) == 0 {
		obj.Listen = DefaultPrometheusListen
	}

	obj.registry = prometheus.NewRegistry()

	obj.completedTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gas_completed_tasks_total",
			Help: "Number of vertex-program Apply invocations completed.",
		},
		[]string{"run"},
	)
	if err := obj.registry.Register(obj.completedTasksTotal); err != nil {
		return errwrap.Wrapf(err, "can't register gas_completed_tasks_total")
	}

	obj.iterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gas_iteration_duration_seconds",
			Help:    "Wall-clock duration of one P1-P4 BSP iteration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"run"},
	)
	if err := obj.registry.Register(obj.iterationDuration); err != nil {
		return errwrap.Wrapf(err, "can't register gas_iteration_duration_seconds")
	}

	obj.activeVertices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gas_active_vertices",
			Help: "Number of vertex replicas active on this machine in the current iteration.",
		},
		[]string{"run"},
	)
	if err := obj.registry.Register(obj.activeVertices); err != nil {
		return errwrap.Wrapf(err, "can't register gas_active_vertices")
	}

	obj.exchangeFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gas_exchange_buffer_flushes_total",
			Help: "Number of BufferedExchange flushes, by concern (message, activation, program, gather, vdata).",
		},
		[]string{"run", "concern"},
	)
	if err := obj.registry.Register(obj.exchangeFlushesTotal); err != nil {
		return errwrap.Wrapf(err, "can't register gas_exchange_buffer_flushes_total")
	}

	return nil
}

// Start runs a http server in a go routine, responding to /metrics with this
// Metrics's own registry, not the global one.
func (obj *Metrics) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(obj.registry, promhttp.HandlerOpts{}))
	obj.server = &http.Server{Addr: obj.Listen, Handler: mux}
	go obj.server.ListenAndServe()
	return nil
}

// Stop the http server.
func (obj *Metrics) Stop() error {
	if obj.server == nil {
		return nil
	}
	return obj.server.Close()
}

// Handler returns an http.Handler serving this Metrics's registry, for a
// caller (eg cmd/gasrun's gin server) that wants to mount it under its own
// mux instead of Start's standalone server.
func (obj *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(obj.registry, promhttp.HandlerOpts{})
}

// IncCompletedTasks increments the completed-task counter for runID by n.
func (obj *Metrics) IncCompletedTasks(runID string, n int) {
	obj.completedTasksTotal.With(prometheus.Labels{"run": runID}).Add(float64(n))
}

// ObserveIterationDuration records how long one BSP iteration took.
func (obj *Metrics) ObserveIterationDuration(runID string, seconds float64) {
	obj.iterationDuration.With(prometheus.Labels{"run": runID}).Observe(seconds)
}

// SetActiveVertices sets the current active-vertex gauge for runID.
func (obj *Metrics) SetActiveVertices(runID string, n int) {
	obj.activeVertices.With(prometheus.Labels{"run": runID}).Set(float64(n))
}

// IncExchangeFlushes increments the flush counter for runID's given
// concern: "message", "activation", "program", "gather", or "vdata".
func (obj *Metrics) IncExchangeFlushes(runID, concern string) {
	obj.exchangeFlushesTotal.With(prometheus.Labels{"run": runID, "concern": concern}).Inc()
}
