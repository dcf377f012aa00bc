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

package engine

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"sync"
	"testing"

	"github.com/purpleidea/gasengine/exchange"
	"github.com/purpleidea/gasengine/partition"
	"github.com/purpleidea/gasengine/rpc"
	"github.com/purpleidea/gasengine/vprog"
)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sumInt(a, b int) int { return a + b }

// floodProgram propagates the smallest distance seen so far one hop
// further on every iteration, the way an SSSP relaxation program does.
type floodProgram struct{}

func (p *floodProgram) Init(ctx vprog.Context[int]) error {
	ctx.SetVertexData(math.MaxInt32)
	return nil
}
func (p *floodProgram) RecvMessage(ctx vprog.Context[int], msg int) error {
	cur := ctx.VertexData().(int)
	ctx.SetVertexData(minInt(cur, msg))
	return nil
}
func (p *floodProgram) GatherEdges() vprog.EdgeDirection { return vprog.NoEdges }
func (p *floodProgram) Gather(ctx vprog.Context[int], edge vprog.Edge) (int, error) {
	return 0, nil
}
func (p *floodProgram) Apply(ctx vprog.Context[int], gathered int) error { return nil }
func (p *floodProgram) ScatterEdges() vprog.EdgeDirection                { return vprog.OutEdges }
func (p *floodProgram) Scatter(ctx vprog.Context[int], edge vprog.Edge) error {
	next := ctx.VertexData().(int) + 1
	return ctx.Signal(edge.Target, next)
}

func TestSingleMachineFloodConverges(t *testing.T) {
	g := partition.New(0, 1)
	g.AddEdge(0, 1, nil)
	g.AddEdge(1, 2, nil)

	store := vprog.NewStore[int, int](g.NumLocal(), func() vprog.Program[int, int] {
		return &floodProgram{}
	})
	combiners := vprog.Combiners[int, int]{Message: minInt, Gather: sumInt}
	coord := rpc.NewLocalCluster(1)[0]

	e := NewSyncEngine[int, int](SyncOptions{MaxIterations: 10}, coord, g, store, combiners, nil, nil, nil, nil, nil)

	ctx := context.Background()
	if err := e.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Signal(ctx, 0, 0); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	status, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusNoMoreTasks {
		t.Fatalf("got status %s, expected %s", status, StatusNoMoreTasks)
	}

	for global, want := range map[uint64]int{0: 0, 1: 1, 2: 2} {
		got, ok := e.VertexData(global)
		if !ok {
			t.Fatalf("vertex %d not found", global)
		}
		if got.(int) != want {
			t.Fatalf("vertex %d: got %v, expected %d", global, got, want)
		}
	}
	if e.CompletedTasks() == 0 {
		t.Fatalf("expected a nonzero completed task count")
	}
}

// hub is an in-memory Transport that bridges the BufferedExchange
// instances of a small set of SyncEngines running as goroutines in the
// same test process, standing in for the gasrpc transport a real
// multi-machine run would use.
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

// sumEdgesProgram gathers a constant per-edge weight over in-edges and
// stores the total, exercising the mirror-to-master gather path and the
// master-to-mirror vertex-data broadcast path across two machines.
type sumEdgesProgram struct{}

func (p *sumEdgesProgram) Init(ctx vprog.Context[int]) error {
	ctx.SetVertexData(0)
	return nil
}
func (p *sumEdgesProgram) RecvMessage(ctx vprog.Context[int], msg int) error { return nil }
func (p *sumEdgesProgram) GatherEdges() vprog.EdgeDirection                 { return vprog.InEdges }
func (p *sumEdgesProgram) Gather(ctx vprog.Context[int], edge vprog.Edge) (int, error) {
	return edge.Data.(int), nil
}
func (p *sumEdgesProgram) Apply(ctx vprog.Context[int], gathered int) error {
	ctx.SetVertexData(gathered)
	return nil
}
func (p *sumEdgesProgram) ScatterEdges() vprog.EdgeDirection           { return vprog.NoEdges }
func (p *sumEdgesProgram) Scatter(ctx vprog.Context[int], edge vprog.Edge) error { return nil }

func TestTwoMachineGatherAndBroadcast(t *testing.T) {
	const numProcs = 2

	// find a source id owned by proc 0 and a target id owned by proc 1,
	// using a throwaway partition just to evaluate OwnerOf.
	probe := partition.New(0, numProcs)
	var idA, idB uint64
	var haveA, haveB bool
	for id := uint64(0); id < 1000 && !(haveA && haveB); id++ {
		switch probe.OwnerOf(id) {
		case 0:
			if !haveA {
				idA, haveA = id, true
			}
		case 1:
			if !haveB {
				idB, haveB = id, true
			}
		}
	}
	if !haveA || !haveB {
		t.Fatalf("could not find ids owned by both procs")
	}

	g0 := partition.New(0, numProcs)
	g0.AddEdge(idA, idB, 5) // edge data is this test's constant weight
	bLocal0, _ := g0.LocalID(idB)

	g1 := partition.New(1, numProcs)
	bLocal1 := g1.Ensure(idB)
	g1.AddMirror(bLocal1, 0) // proc 0 holds a replica of B via its edge

	store0 := vprog.NewStore[int, int](g0.NumLocal(), func() vprog.Program[int, int] {
		return &sumEdgesProgram{}
	})
	store1 := vprog.NewStore[int, int](g1.NumLocal(), func() vprog.Program[int, int] {
		return &sumEdgesProgram{}
	})
	combiners := vprog.Combiners[int, int]{Message: sumInt, Gather: sumInt}

	coords := rpc.NewLocalCluster(numProcs)

	msgHub := newHub[uint64, int]()
	actHub := newHub[uint64, struct{}]()
	gatherHub := newHub[uint64, int]()
	vdataHub := newHub[uint64, interface{}]()
	progHub := newHub[uint64, []byte]()

	opts := SyncOptions{MaxIterations: 5}
	e0 := NewSyncEngine[int, int](opts, coords[0], g0, store0, combiners, msgHub, actHub, gatherHub, vdataHub, progHub)
	e1 := NewSyncEngine[int, int](opts, coords[1], g1, store1, combiners, msgHub, actHub, gatherHub, vdataHub, progHub)

	msgHub.register(0, e0.MessageExchange())
	msgHub.register(1, e1.MessageExchange())
	actHub.register(0, e0.ActivationExchange())
	actHub.register(1, e1.ActivationExchange())
	gatherHub.register(0, e0.GatherExchange())
	gatherHub.register(1, e1.GatherExchange())
	vdataHub.register(0, e0.VertexDataExchange())
	vdataHub.register(1, e1.VertexDataExchange())
	progHub.register(0, e0.ProgramExchange())
	progHub.register(1, e1.ProgramExchange())

	ctx := context.Background()
	var wg sync.WaitGroup
	var err0, err1 error

	wg.Add(2)
	go func() { defer wg.Done(); err0 = e0.Init(ctx) }()
	go func() { defer wg.Done(); err1 = e1.Init(ctx) }()
	wg.Wait()
	if err0 != nil || err1 != nil {
		t.Fatalf("Init: %v / %v", err0, err1)
	}

	// seed vertex B (mastered on proc 1) so it participates in P1.
	if err := e1.Signal(ctx, idB, 0); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	var status0, status1 ExecStatus
	wg.Add(2)
	go func() { defer wg.Done(); status0, err0 = e0.Run(ctx) }()
	go func() { defer wg.Done(); status1, err1 = e1.Run(ctx) }()
	wg.Wait()
	if err0 != nil || err1 != nil {
		t.Fatalf("Run: %v / %v", err0, err1)
	}
	if status0 != StatusNoMoreTasks || status1 != StatusNoMoreTasks {
		t.Fatalf("got statuses %s / %s, expected %s", status0, status1, StatusNoMoreTasks)
	}

	got1, ok := e1.VertexData(idB)
	if !ok || got1.(int) != 5 {
		t.Fatalf("master's copy of B: got (%v, %v), expected (5, true)", got1, ok)
	}
	got0, ok := e0.VertexData(idB)
	if !ok || got0.(int) != 5 {
		t.Fatalf("mirror's copy of B: got (%v, %v), expected (5, true)", got0, ok)
	}
}

// taggedProgram keeps a field, tag, that is program state in spec.md
// section 3's sense: data a vertex program carries on itself rather than
// publishing through ctx.SetVertexData. Init seeds tag to a fixed,
// otherwise-unreachable value and nothing ever changes it afterward, so the
// only way a mirror's own Program instance could ever see it is if the
// engine actually replicates it via the program exchange — a mirror's
// Program is always built fresh by its store's factory (tag's zero value),
// and Init only ever runs on masters.
type taggedProgram struct {
	tag int
}

const taggedProgramSeed = 4242

func (p *taggedProgram) Init(ctx vprog.Context[int]) error {
	p.tag = taggedProgramSeed
	ctx.SetVertexData(0)
	return nil
}
func (p *taggedProgram) RecvMessage(ctx vprog.Context[int], msg int) error { return nil }
func (p *taggedProgram) GatherEdges() vprog.EdgeDirection                  { return vprog.NoEdges }
func (p *taggedProgram) Gather(ctx vprog.Context[int], edge vprog.Edge) (int, error) {
	return 0, nil
}
func (p *taggedProgram) Apply(ctx vprog.Context[int], gathered int) error {
	ctx.SetVertexData(p.tag)
	return nil
}
func (p *taggedProgram) ScatterEdges() vprog.EdgeDirection                 { return vprog.NoEdges }
func (p *taggedProgram) Scatter(ctx vprog.Context[int], edge vprog.Edge) error { return nil }

func (p *taggedProgram) MarshalProgramState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.tag); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *taggedProgram) UnmarshalProgramState(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&p.tag)
}

// TestProgramExchangeReplicatesProgramState seeds a vertex mastered on proc
// 1 with a mirror on proc 0 and checks that proc 0's own Program instance
// for that vertex ends up with the master's tag field, which only the
// program exchange could have put there.
func TestProgramExchangeReplicatesProgramState(t *testing.T) {
	const numProcs = 2

	probe := partition.New(0, numProcs)
	var idB uint64
	var haveB bool
	for id := uint64(0); id < 1000 && !haveB; id++ {
		if probe.OwnerOf(id) == 1 {
			idB, haveB = id, true
		}
	}
	if !haveB {
		t.Fatalf("could not find an id owned by proc 1")
	}

	g0 := partition.New(0, numProcs)
	g0.Ensure(idB)

	g1 := partition.New(1, numProcs)
	bLocal1 := g1.Ensure(idB)
	g1.AddMirror(bLocal1, 0) // proc 0 holds a replica of B

	store0 := vprog.NewStore[int, int](g0.NumLocal(), func() vprog.Program[int, int] {
		return &taggedProgram{}
	})
	store1 := vprog.NewStore[int, int](g1.NumLocal(), func() vprog.Program[int, int] {
		return &taggedProgram{}
	})
	combiners := vprog.Combiners[int, int]{Message: sumInt, Gather: sumInt}

	coords := rpc.NewLocalCluster(numProcs)

	msgHub := newHub[uint64, int]()
	actHub := newHub[uint64, struct{}]()
	gatherHub := newHub[uint64, int]()
	vdataHub := newHub[uint64, interface{}]()
	progHub := newHub[uint64, []byte]()

	opts := SyncOptions{MaxIterations: 3}
	e0 := NewSyncEngine[int, int](opts, coords[0], g0, store0, combiners, msgHub, actHub, gatherHub, vdataHub, progHub)
	e1 := NewSyncEngine[int, int](opts, coords[1], g1, store1, combiners, msgHub, actHub, gatherHub, vdataHub, progHub)

	msgHub.register(0, e0.MessageExchange())
	msgHub.register(1, e1.MessageExchange())
	actHub.register(0, e0.ActivationExchange())
	actHub.register(1, e1.ActivationExchange())
	gatherHub.register(0, e0.GatherExchange())
	gatherHub.register(1, e1.GatherExchange())
	vdataHub.register(0, e0.VertexDataExchange())
	vdataHub.register(1, e1.VertexDataExchange())
	progHub.register(0, e0.ProgramExchange())
	progHub.register(1, e1.ProgramExchange())

	ctx := context.Background()
	var wg sync.WaitGroup
	var err0, err1 error

	wg.Add(2)
	go func() { defer wg.Done(); err0 = e0.Init(ctx) }()
	go func() { defer wg.Done(); err1 = e1.Init(ctx) }()
	wg.Wait()
	if err0 != nil || err1 != nil {
		t.Fatalf("Init: %v / %v", err0, err1)
	}

	if err := e1.Signal(ctx, idB, 0); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	wg.Add(2)
	go func() { defer wg.Done(); _, err0 = e0.Run(ctx) }()
	go func() { defer wg.Done(); _, err1 = e1.Run(ctx) }()
	wg.Wait()
	if err0 != nil || err1 != nil {
		t.Fatalf("Run: %v / %v", err0, err1)
	}

	masterProg, ok := e1.Program(idB)
	if !ok {
		t.Fatalf("master has no program instance for B")
	}
	if got := masterProg.(*taggedProgram).tag; got != taggedProgramSeed {
		t.Fatalf("master's own tag: got %d, expected %d", got, taggedProgramSeed)
	}

	mirrorProg, ok := e0.Program(idB)
	if !ok {
		t.Fatalf("mirror never constructed a program instance for B; program exchange did not reach it")
	}
	if got := mirrorProg.(*taggedProgram).tag; got != taggedProgramSeed {
		t.Fatalf("mirror's program state: got tag=%d, expected %d (master's, via the program exchange)", got, taggedProgramSeed)
	}
}
