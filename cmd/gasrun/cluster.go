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

// Package main demos the engine with three seed vertex programs (PageRank,
// single-source shortest paths, connected components) running across a
// caller-chosen number of simulated machines in one OS process: each
// "machine" is a goroutine with its own SyncEngine, wired to the others
// through in-memory BufferedExchange transports instead of a real gasrpc
// network link, the same hub pattern the engine package's own tests use.
package main

import (
	"context"
	"sync"

	"github.com/purpleidea/gasengine/engine"
	"github.com/purpleidea/gasengine/exchange"
	"github.com/purpleidea/gasengine/partition"
	"github.com/purpleidea/gasengine/prometheus"
	"github.com/purpleidea/gasengine/rpc"
	"github.com/purpleidea/gasengine/vprog"
)

// hub is an in-memory exchange.Transport bridging the engines of every
// simulated machine in one demo run.
type hub[K any, V any] struct {
	mu    sync.Mutex
	peers map[int]*exchange.BufferedExchange[K, V]
}

func newHub[K any, V any]() *hub[K, V] {
	return &hub[K, V]{peers: make(map[int]*exchange.BufferedExchange[K, V])}
}

func (h *hub[K, V]) register(proc int, ex *exchange.BufferedExchange[K, V]) {
	h.mu.Lock()
	h.peers[proc] = ex
	h.mu.Unlock()
}

func (h *hub[K, V]) SendBatch(ctx context.Context, destProc int, entries []exchange.Entry[K, V]) error {
	h.mu.Lock()
	peer := h.peers[destProc]
	h.mu.Unlock()
	peer.Deliver(entries)
	return nil
}

// edgeSpec is one directed edge in a demo graph builder's edge list.
type edgeSpec struct {
	src, dst uint64
	data     interface{}
}

// partitionForMessaging builds one LocalGraph per proc and places every
// vertex on its own owner's graph (so Init/RecvMessage/Apply always have
// somewhere to run) and every edge on its source's owner's graph (so
// ScatterEdges finds it wherever the source vertex is active). This fits
// every demo program here because all three are message-passing (Pregel
// style, GatherEdges()==NoEdges): nothing ever needs a mirror, since
// ctx.Signal resolves a message's destination purely from its global id,
// independent of whether the sender's machine has a local replica of it.
// A GAS-style program that folds over live neighbor values instead of
// messages needs real mirror wiring; engine_test.go's sumEdgesProgram
// exercises that path directly.
func partitionForMessaging(numProcs int, vertices []uint64, edges []edgeSpec) []*partition.LocalGraph {
	probe := partition.New(0, numProcs)
	graphs := make([]*partition.LocalGraph, numProcs)
	for i := range graphs {
		graphs[i] = partition.New(i, numProcs)
	}
	for _, v := range vertices {
		graphs[probe.OwnerOf(v)].Ensure(v)
	}
	for _, e := range edges {
		graphs[probe.OwnerOf(e.src)].AddEdge(e.src, e.dst, e.data)
	}
	return graphs
}

// clusterRun is the handle main.go and the status server use to watch a
// demo in flight, independent of its message/gather-partial types.
type clusterRun struct {
	engines []runStatus
	graphs  []*partition.LocalGraph
}

// runStatus is the subset of SyncEngine a status endpoint needs, satisfied
// structurally by every SyncEngine[M, G] regardless of M and G.
type runStatus interface {
	RunID() string
	State() engine.State
	Iteration() int
	CompletedTasks() int64
}

// runCluster builds numProcs SyncEngines over the given per-proc graphs,
// wires their five exchanges through shared in-memory hubs, runs Init and
// Run concurrently (required: coord.Barrier blocks until every proc calls
// it), and returns every engine alongside its final ExecStatus.
func runCluster[M any, G any](
	ctx context.Context,
	opts engine.SyncOptions,
	metrics *prometheus.Metrics,
	graphs []*partition.LocalGraph,
	newProgram func() vprog.Program[M, G],
	combiners vprog.Combiners[M, G],
	seed func(idx int, e *engine.SyncEngine[M, G]) error,
) ([]*engine.SyncEngine[M, G], []engine.ExecStatus, error) {
	numProcs := len(graphs)
	coords := rpc.NewLocalCluster(numProcs)

	msgHub := newHub[uint64, M]()
	actHub := newHub[uint64, struct{}]()
	gatherHub := newHub[uint64, G]()
	vdataHub := newHub[uint64, interface{}]()
	progHub := newHub[uint64, []byte]()

	engines := make([]*engine.SyncEngine[M, G], numProcs)
	for i := 0; i < numProcs; i++ {
		store := vprog.NewStore[M, G](graphs[i].NumLocal(), newProgram)
		e := engine.NewSyncEngine[M, G](opts, coords[i], graphs[i], store, combiners, msgHub, actHub, gatherHub, vdataHub, progHub)
		e.Metrics = metrics
		msgHub.register(i, e.MessageExchange())
		actHub.register(i, e.ActivationExchange())
		gatherHub.register(i, e.GatherExchange())
		vdataHub.register(i, e.VertexDataExchange())
		progHub.register(i, e.ProgramExchange())
		engines[i] = e
	}

	if err := runOnEach(engines, func(e *engine.SyncEngine[M, G]) error {
		return e.Init(ctx)
	}); err != nil {
		return nil, nil, err
	}

	if seed != nil {
		for i, e := range engines {
			if err := seed(i, e); err != nil {
				return nil, nil, err
			}
		}
	}

	statuses := make([]engine.ExecStatus, numProcs)
	err := runOnEach(engines, func(e *engine.SyncEngine[M, G]) error {
		idx := indexOf(engines, e)
		st, runErr := e.Run(ctx)
		statuses[idx] = st
		return runErr
	})
	return engines, statuses, err
}

// runOnEach calls fn on every engine concurrently and joins on the first
// error, the way a real cluster's machines all crash their own process on
// failure rather than one telling the others to stop.
func runOnEach[M any, G any](engines []*engine.SyncEngine[M, G], fn func(*engine.SyncEngine[M, G]) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(engines))
	wg.Add(len(engines))
	for i, e := range engines {
		go func(i int, e *engine.SyncEngine[M, G]) {
			defer wg.Done()
			errs[i] = fn(e)
		}(i, e)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// toRunStatus upcasts a slice of concrete engines to the type-erased
// runStatus view a status server can hold regardless of M and G.
func toRunStatus[M any, G any](engines []*engine.SyncEngine[M, G]) []runStatus {
	out := make([]runStatus, len(engines))
	for i, e := range engines {
		out[i] = e
	}
	return out
}

func indexOf[M any, G any](engines []*engine.SyncEngine[M, G], target *engine.SyncEngine[M, G]) int {
	for i, e := range engines {
		if e == target {
			return i
		}
	}
	return -1
}
