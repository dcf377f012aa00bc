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

	"github.com/purpleidea/gasengine/engine"
	"github.com/purpleidea/gasengine/partition"
	"github.com/purpleidea/gasengine/prometheus"
	"github.com/purpleidea/gasengine/vprog"
)

const ssspUnreached = int64(1<<63 - 1)

// shortestPathProgram is single-source shortest paths over a weighted
// directed graph (edge.Data is an int64 edge weight, set by the demo graph
// builder below): every vertex relaxes to the
// minimum distance any neighbor has signaled it and, on relaxing, signals
// its own out-neighbors with distance+weight. A vertex whose distance never
// changes stays quiescent, so the run naturally settles once no shorter
// path exists anywhere (the same flood pattern engine_test.go's
// floodProgram exercises, generalized from hop count to weighted distance).
type shortestPathProgram struct {
	relaxed bool
}

func (p *shortestPathProgram) Init(ctx vprog.Context[int64]) error {
	ctx.SetVertexData(ssspUnreached)
	return nil
}

func (p *shortestPathProgram) RecvMessage(ctx vprog.Context[int64], msg int64) error {
	cur := ctx.VertexData().(int64)
	p.relaxed = msg < cur
	if p.relaxed {
		ctx.SetVertexData(msg)
	}
	return nil
}

func (p *shortestPathProgram) GatherEdges() vprog.EdgeDirection { return vprog.NoEdges }

func (p *shortestPathProgram) Gather(ctx vprog.Context[int64], edge vprog.Edge) (struct{}, error) {
	return struct{}{}, nil
}

func (p *shortestPathProgram) Apply(ctx vprog.Context[int64], gathered struct{}) error {
	return nil
}

func (p *shortestPathProgram) ScatterEdges() vprog.EdgeDirection { return vprog.OutEdges }

func (p *shortestPathProgram) Scatter(ctx vprog.Context[int64], edge vprog.Edge) error {
	dist := ctx.VertexData().(int64)
	if !p.relaxed || dist == ssspUnreached {
		return nil
	}
	weight, _ := edge.Data.(int64)
	return ctx.Signal(edge.Target, dist+weight)
}

func ssspMinCombiner(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ssspDemoGraph is a 6-vertex weighted chain with two shortcuts, so the
// shortest paths to vertices 4 and 5 are not simply the sum along the chain:
//
//	0 --1--> 1 --1--> 2 --1--> 3 --1--> 4 --1--> 5
//	0 ----------4----------------------------->  5   (shortcut, ties 0-1-4-5)
//	1 --------------------2------------------->  4   (shortcut, better)
func ssspDemoGraph(numProcs int) (graphs []*partition.LocalGraph, source uint64) {
	vertices := []uint64{0, 1, 2, 3, 4, 5}
	edges := []edgeSpec{
		{0, 1, int64(1)},
		{1, 2, int64(1)},
		{2, 3, int64(1)},
		{3, 4, int64(1)},
		{4, 5, int64(1)},
		{0, 5, int64(4)},
		{1, 4, int64(2)},
	}
	return partitionForMessaging(numProcs, vertices, edges), 0
}

// runSSSP builds the demo graph, seeds the source vertex at distance 0, and
// runs to quiescence, returning every vertex's final distance keyed by
// global id.
func runSSSP(ctx context.Context, opts engine.SyncOptions, numProcs int, metrics *prometheus.Metrics) (map[uint64]int64, []engine.ExecStatus, []runStatus, error) {
	graphs, source := ssspDemoGraph(numProcs)
	combiners := vprog.Combiners[int64, struct{}]{Message: ssspMinCombiner}

	engines, statuses, err := runCluster[int64, struct{}](ctx, opts, metrics, graphs,
		func() vprog.Program[int64, struct{}] { return &shortestPathProgram{} },
		combiners,
		func(idx int, e *engine.SyncEngine[int64, struct{}]) error {
			g := graphs[idx]
			l, ok := g.LocalID(source)
			if !ok || !g.IsMaster(l) {
				return nil
			}
			return e.Signal(ctx, source, 0)
		},
	)
	if err != nil {
		return nil, statuses, toRunStatus(engines), err
	}

	out := make(map[uint64]int64)
	for i, g := range graphs {
		n := g.NumLocal()
		for l := 0; l < n; l++ {
			if !g.IsMaster(l) {
				continue
			}
			global := g.GlobalID(l)
			if v, ok := engines[i].VertexData(global); ok {
				out[global] = v.(int64)
			}
		}
	}
	return out, statuses, toRunStatus(engines), nil
}
