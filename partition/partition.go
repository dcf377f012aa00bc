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

// Package partition is the minimal graph-partition collaborator the engine
// needs to run at all: it maps global vertex ids to this machine's local
// ids, records which machine masters each vertex, tracks each vertex's
// mirror set, and holds the local adjacency. The partitioning algorithm
// itself (how edges are sharded across machines) is explicitly out of
// scope of spec.md section 1 ("no partitioning/loading strategy is
// specified"); this package supplies a deterministic hash partition so the
// engine package has something concrete to drive and test against.
package partition

import (
	"hash/fnv"
	"sync"

	"github.com/purpleidea/gasengine/vprog"
)

// LocalGraph is one machine's view of the graph: every vertex it has ever
// seen (as master or mirror) gets a local id, stable for the lifetime of
// the run.
type LocalGraph struct {
	selfProc int
	numProcs int

	mu            sync.RWMutex
	globalToLocal map[uint64]int
	localToGlobal []uint64
	owner         []int
	mirrors       [][]int
	outEdges      [][]vprog.Edge
	inEdges       [][]vprog.Edge
}

// New builds an empty LocalGraph for selfProc of numProcs total machines.
func New(selfProc, numProcs int) *LocalGraph {
	return &LocalGraph{
		selfProc:      selfProc,
		numProcs:      numProcs,
		globalToLocal: make(map[uint64]int),
	}
}

// OwnerOf deterministically assigns a master machine to a global vertex id
// via FNV-1a, so every machine computes the same answer without
// coordination.
func (g *LocalGraph) OwnerOf(global uint64) int {
	if g.numProcs <= 1 {
		return 0
	}
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(global >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(g.numProcs))
}

// Ensure returns the local id for a global vertex id, creating one (and
// assigning its master) on first sight.
func (g *LocalGraph) Ensure(global uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.globalToLocal[global]; ok {
		return l
	}
	l := len(g.localToGlobal)
	g.globalToLocal[global] = l
	g.localToGlobal = append(g.localToGlobal, global)
	g.owner = append(g.owner, g.OwnerOf(global))
	g.mirrors = append(g.mirrors, nil)
	g.outEdges = append(g.outEdges, nil)
	g.inEdges = append(g.inEdges, nil)
	return l
}

// NumLocal reports how many vertices (masters plus mirrors) this machine
// knows about.
func (g *LocalGraph) NumLocal() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.localToGlobal)
}

// LocalID looks up the local id for a global vertex id, if this machine
// has seen it.
func (g *LocalGraph) LocalID(global uint64) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.globalToLocal[global]
	return l, ok
}

// GlobalID returns the global vertex id for local id l.
func (g *LocalGraph) GlobalID(l int) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.localToGlobal[l]
}

// IsMaster reports whether this machine masters local vertex l.
func (g *LocalGraph) IsMaster(l int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner[l] == g.selfProc
}

// Owner returns the proc id that masters local vertex l.
func (g *LocalGraph) Owner(l int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner[l]
}

// Mirrors returns the set of other procs holding a replica of local
// vertex l. Only meaningful when called on the master.
func (g *LocalGraph) Mirrors(l int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int, len(g.mirrors[l]))
	copy(out, g.mirrors[l])
	return out
}

// AddMirror records that proc now holds a replica of local vertex l.
// Idempotent.
func (g *LocalGraph) AddMirror(l int, proc int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.mirrors[l] {
		if p == proc {
			return
		}
	}
	g.mirrors[l] = append(g.mirrors[l], proc)
}

// AddEdge records a directed edge between two global vertex ids, creating
// local ids for either endpoint not yet seen. data is opaque edge data
// handed back verbatim in vprog.Edge during gather/scatter.
func (g *LocalGraph) AddEdge(srcGlobal, dstGlobal uint64, data interface{}) {
	srcLocal := g.Ensure(srcGlobal)
	dstLocal := g.Ensure(dstGlobal)

	g.mu.Lock()
	defer g.mu.Unlock()
	edge := vprog.Edge{Source: srcGlobal, Target: dstGlobal, Data: data}
	g.outEdges[srcLocal] = append(g.outEdges[srcLocal], edge)
	g.inEdges[dstLocal] = append(g.inEdges[dstLocal], edge)
}

// OutEdges returns the edges directed out of local vertex l.
func (g *LocalGraph) OutEdges(l int) []vprog.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]vprog.Edge, len(g.outEdges[l]))
	copy(out, g.outEdges[l])
	return out
}

// InEdges returns the edges directed into local vertex l.
func (g *LocalGraph) InEdges(l int) []vprog.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]vprog.Edge, len(g.inEdges[l]))
	copy(out, g.inEdges[l])
	return out
}

// NumEdgesFor reports how many edges dir selects for local vertex l,
// without copying them, for a program that just needs a degree (eg dividing
// a rank by out-degree in Scatter).
func (g *LocalGraph) NumEdgesFor(l int, dir vprog.EdgeDirection) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch dir {
	case vprog.InEdges:
		return len(g.inEdges[l])
	case vprog.OutEdges:
		return len(g.outEdges[l])
	case vprog.AllEdges:
		return len(g.inEdges[l]) + len(g.outEdges[l])
	default:
		return 0
	}
}

// EdgesFor returns the edges selected by dir for local vertex l.
func (g *LocalGraph) EdgesFor(l int, dir vprog.EdgeDirection) []vprog.Edge {
	switch dir {
	case vprog.InEdges:
		return g.InEdges(l)
	case vprog.OutEdges:
		return g.OutEdges(l)
	case vprog.AllEdges:
		return append(g.InEdges(l), g.OutEdges(l)...)
	default:
		return nil
	}
}
