// Mgmt
// Copyright (C) 2013-2020+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package prometheus

import (
	"testing"
)

// TestInitRegistersMetrics checks that Init registers every named metric
// into this instance's own registry, not the package-level DefaultGatherer.
func TestInitRegistersMetrics(t *testing.T) {
	var m Metrics
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	metrics, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"gas_completed_tasks_total":         false,
		"gas_iteration_duration_seconds":    false,
		"gas_active_vertices":               false,
		"gas_exchange_buffer_flushes_total": false,
	}
	for _, fam := range metrics {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s was not registered", name)
		}
	}
}

// TestCountersAccumulate exercises the Inc/Observe/Set helpers and confirms
// they land under the "run" label a caller passes in, isolating one engine
// run's numbers from another's in the same process.
func TestCountersAccumulate(t *testing.T) {
	var m Metrics
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	m.IncCompletedTasks("run-a", 3)
	m.IncCompletedTasks("run-a", 2)
	m.ObserveIterationDuration("run-a", 0.5)
	m.SetActiveVertices("run-a", 7)
	m.IncExchangeFlushes("run-a", "message")
	m.IncExchangeFlushes("run-a", "message")

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var gotTasks, gotFlushes float64
	var gotActive float64
	for _, fam := range families {
		switch fam.GetName() {
		case "gas_completed_tasks_total":
			for _, mm := range fam.GetMetric() {
				gotTasks += mm.GetCounter().GetValue()
			}
		case "gas_exchange_buffer_flushes_total":
			for _, mm := range fam.GetMetric() {
				gotFlushes += mm.GetCounter().GetValue()
			}
		case "gas_active_vertices":
			for _, mm := range fam.GetMetric() {
				gotActive += mm.GetGauge().GetValue()
			}
		}
	}
	if gotTasks != 5 {
		t.Errorf("gas_completed_tasks_total: got %v, expected 5", gotTasks)
	}
	if gotFlushes != 2 {
		t.Errorf("gas_exchange_buffer_flushes_total: got %v, expected 2", gotFlushes)
	}
	if gotActive != 7 {
		t.Errorf("gas_active_vertices: got %v, expected 7", gotActive)
	}
}
