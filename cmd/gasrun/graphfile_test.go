// Mgmt
// Copyright (C) 2013-2018+ James Shubin and the project contributors
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

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/purpleidea/gasengine/engine"
)

func TestLoadUndirectedGraphFileRunsComponents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yaml")
	const doc = `
vertices: [1, 2, 3, 9]
edges:
  - [1, 2]
  - [2, 3]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	vertices, edges, err := loadUndirectedGraphFile(path)
	if err != nil {
		t.Fatalf("loadUndirectedGraphFile: %v", err)
	}
	if len(vertices) != 4 {
		t.Fatalf("got %d vertices, want 4", len(vertices))
	}
	if len(edges) != 4 { // 2 undirected pairs, both directions
		t.Fatalf("got %d edges, want 4", len(edges))
	}

	graphs := partitionForMessaging(2, vertices, edges)
	labels, statuses, _, err := runConnectedComponentsOnGraphs(context.Background(), engine.SyncOptions{MaxIterations: 10}, graphs, nil)
	if err != nil {
		t.Fatalf("runConnectedComponentsOnGraphs: %v", err)
	}
	wantNoMoreTasks(t, statuses)

	want := map[uint64]uint64{1: 1, 2: 1, 3: 1, 9: 9}
	for global, w := range want {
		if got := labels[global]; got != w {
			t.Errorf("vertex %d: got label %d, want %d", global, got, w)
		}
	}
}

func TestLoadUndirectedGraphFileRejectsEmptyVertexList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("vertices: []\nedges: []\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := loadUndirectedGraphFile(path); err == nil {
		t.Fatal("expected an error for a graph file with no vertices")
	}
}
