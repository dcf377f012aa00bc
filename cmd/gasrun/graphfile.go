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
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// yamlGraph is the on-disk shape of a --graph-file: a vertex list plus an
// edge list given as two-element [src, dst] pairs, the same flat shape the
// teacher reaches for whenever a fixture belongs in a file rather than in
// Go source (compare the YAML-shaped fixtures loaded elsewhere in its
// tree).
type yamlGraph struct {
	Vertices []uint64    `yaml:"vertices"`
	Edges    [][2]uint64 `yaml:"edges"`
}

// loadUndirectedGraphFile reads a yamlGraph from path and returns its
// vertex list and its edges expanded into both directions (via undirected),
// for use in place of componentsDemoGraph's built-in fixture.
func loadUndirectedGraphFile(path string) (vertices []uint64, edges []edgeSpec, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("gasrun: read graph file %q: %w", path, err)
	}

	var g yamlGraph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, nil, fmt.Errorf("gasrun: parse graph file %q: %w", path, err)
	}
	if len(g.Vertices) == 0 {
		return nil, nil, fmt.Errorf("gasrun: graph file %q declares no vertices", path)
	}

	return g.Vertices, undirected(g.Edges), nil
}
