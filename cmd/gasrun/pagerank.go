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

const pageRankDamping = 0.85

// pageRankProgram is PowerGraph's canonical example algorithm, expressed as
// message passing rather than a live neighbor-value gather: each vertex's
// Scatter divides its own rank by its out-degree (via ctx.NumEdges) and
// signals that share to every out-neighbor; RecvMessage folds the signaled
// shares (the engine's message combiner sums them per spec.md section 4.1's
// associative-commutative requirement) into the random-surfer formula. A
// vertex with zero out-edges never sends a share, the classic "rank sink"
// PowerGraph's own example leaves to the caller to handle via dangling-mass
// redistribution; this demo does not redistribute it.
type pageRankProgram struct {
	numVertices int
}

func (p *pageRankProgram) Init(ctx vprog.Context[float64]) error {
	ctx.SetVertexData(1.0 / float64(p.numVertices))
	return nil
}

func (p *pageRankProgram) RecvMessage(ctx vprog.Context[float64], msg float64) error {
	n := float64(p.numVertices)
	ctx.SetVertexData((1-pageRankDamping)/n + pageRankDamping*msg)
	return nil
}

func (p *pageRankProgram) GatherEdges() vprog.EdgeDirection { return vprog.NoEdges }

func (p *pageRankProgram) Gather(ctx vprog.Context[float64], edge vprog.Edge) (float64, error) {
	return 0, nil
}

func (p *pageRankProgram) Apply(ctx vprog.Context[float64], gathered float64) error {
	return nil
}

func (p *pageRankProgram) ScatterEdges() vprog.EdgeDirection { return vprog.OutEdges }

func (p *pageRankProgram) Scatter(ctx vprog.Context[float64], edge vprog.Edge) error {
	outDegree := ctx.NumEdges(vprog.OutEdges)
	if outDegree == 0 {
		return nil
	}
	rank := ctx.VertexData().(float64)
	return ctx.Signal(edge.Target, rank/float64(outDegree))
}

func pageRankSumCombiner(a, b float64) float64 { return a + b }

// pageRankDemoGraph is a 5-vertex directed cycle with one extra cross-edge,
// so rank does not split evenly: 0->1->2->3->4->0, plus 0->2, giving vertex
// 2 two inbound contributors and a visibly higher steady-state rank than
// its neighbors.
func pageRankDemoGraph(numProcs int) []*partition.LocalGraph {
	vertices := []uint64{0, 1, 2, 3, 4}
	edges := []edgeSpec{
		{0, 1, nil},
		{1, 2, nil},
		{2, 3, nil},
		{3, 4, nil},
		{4, 0, nil},
		{0, 2, nil},
	}
	return partitionForMessaging(numProcs, vertices, edges)
}

// runPageRank runs PageRank for opts.MaxIterations iterations and returns
// the final rank per global vertex id. Every vertex with out-edges signals
// its neighbors in every iteration, so the demo graph (a cycle) never goes
// quiescent: the run always ends on the iteration bound.
func runPageRank(ctx context.Context, opts engine.SyncOptions, numProcs int, metrics *prometheus.Metrics) (map[uint64]float64, []engine.ExecStatus, []runStatus, error) {
	graphs := pageRankDemoGraph(numProcs)
	numVertices := 0
	for _, g := range graphs {
		for l := 0; l < g.NumLocal(); l++ {
			if g.IsMaster(l) {
				numVertices++
			}
		}
	}
	combiners := vprog.Combiners[float64, float64]{Message: pageRankSumCombiner}

	engines, statuses, err := runCluster[float64, float64](ctx, opts, metrics, graphs,
		func() vprog.Program[float64, float64] { return &pageRankProgram{numVertices: numVertices} },
		combiners,
		func(idx int, e *engine.SyncEngine[float64, float64]) error {
			e.SignalAll(0.0)
			return nil
		},
	)
	if err != nil {
		return nil, statuses, toRunStatus(engines), err
	}

	out := make(map[uint64]float64)
	for i, g := range graphs {
		n := g.NumLocal()
		for l := 0; l < n; l++ {
			if !g.IsMaster(l) {
				continue
			}
			global := g.GlobalID(l)
			if v, ok := engines[i].VertexData(global); ok {
				out[global] = v.(float64)
			}
		}
	}
	return out, statuses, toRunStatus(engines), nil
}
