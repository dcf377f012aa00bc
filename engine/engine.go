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
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/purpleidea/gasengine/atomicvec"
	"github.com/purpleidea/gasengine/bitset"
	"github.com/purpleidea/gasengine/converger"
	"github.com/purpleidea/gasengine/exchange"
	"github.com/purpleidea/gasengine/partition"
	"github.com/purpleidea/gasengine/prometheus"
	"github.com/purpleidea/gasengine/rpc"
	"github.com/purpleidea/gasengine/util/errwrap"
	"github.com/purpleidea/gasengine/vprog"
	"github.com/purpleidea/gasengine/workers"
)

// SyncEngine is the BSP driver. One instance runs one vertex program, of
// message type M and gather-partial type G, to quiescence over the local
// partition it is given. The graph must be fully loaded (every AddEdge and
// Ensure call made) before NewSyncEngine is called: dynamic graph mutation
// during a run is a spec.md Non-goal, and every per-vertex collaborator
// below is sized once, from graph.NumLocal(), at construction.
type SyncEngine[M any, G any] struct {
	Opts SyncOptions
	Logf func(format string, v ...interface{})
	Debug bool

	// Metrics, if set before Run, receives per-iteration task/duration/
	// active-vertex/flush observations (SPEC_FULL.md section B).
	Metrics *prometheus.Metrics

	coord     rpc.Coordinator
	graph     *partition.LocalGraph
	programs  *vprog.Store[M, G]
	combiners vprog.Combiners[M, G]
	pool      *workers.PhaseWorkers

	msgExchange    *exchange.BufferedExchange[uint64, M]
	actExchange    *exchange.BufferedExchange[uint64, struct{}]
	gatherExchange *exchange.BufferedExchange[uint64, G]
	vdataExchange  *exchange.BufferedExchange[uint64, interface{}]
	progExchange   *exchange.BufferedExchange[uint64, []byte]

	vdata []interface{}

	active           *bitset.DenseBitset
	activeNext       *bitset.DenseBitset
	messages         *atomicvec.AtomicAddVector[M]
	gatherTotal      *atomicvec.AtomicAddVector[G]
	gatherCacheValid *bitset.DenseBitset
	gatherCache      []G

	completedTasks int64
	pendingSignals int64
	forcedAbort    int32

	iteration int
	state     State
	stateMu   sync.Mutex

	runID string

	// quiescence fans the "no active vertex" and "no pending signal"
	// concerns into a single local-convergence transition, purely for
	// observability: the engine's own termination check is the
	// rpc.Coordinator.AllReduceOr call in Run, below.
	quiescence  converger.Watcher
	convActive  converger.Tap
	convPending converger.Tap
}

// NewSyncEngine builds a SyncEngine over an already-loaded LocalGraph. The
// five transports back the exchange per concern (messages, activation
// broadcast, gather partials, vertex-data broadcast, program-state
// broadcast); a single machine run may pass nil for all five, since a send
// to the machine itself never reaches the transport, and a clustered run
// passes five gasrpc-backed transports.
func NewSyncEngine[M any, G any](
	opts SyncOptions,
	coord rpc.Coordinator,
	graph *partition.LocalGraph,
	programs *vprog.Store[M, G],
	combiners vprog.Combiners[M, G],
	msgTransport exchange.Transport[uint64, M],
	actTransport exchange.Transport[uint64, struct{}],
	gatherTransport exchange.Transport[uint64, G],
	vdataTransport exchange.Transport[uint64, interface{}],
	progTransport exchange.Transport[uint64, []byte],
) *SyncEngine[M, G] {
	n := graph.NumLocal()
	numWorkers := opts.NumWorkers
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	e := &SyncEngine[M, G]{
		Opts:      opts,
		coord:     coord,
		graph:     graph,
		programs:  programs,
		combiners: combiners,
		pool:      workers.NewPhaseWorkers(numWorkers),
		runID:     uuid.NewString(),

		vdata:            make([]interface{}, n),
		active:           bitset.NewDenseBitset(n),
		activeNext:       bitset.NewDenseBitset(n),
		messages:         atomicvec.NewAtomicAddVector[M](n, combiners.Message),
		gatherTotal:      atomicvec.NewAtomicAddVector[G](n, combiners.Gather),
		gatherCacheValid: bitset.NewDenseBitset(n),
		gatherCache:      make([]G, n),
	}

	limit := opts.BufferLimit
	background := !opts.NoBackgroundComms
	e.msgExchange = exchange.New[uint64, M](coord.SelfProc(), coord.NumProcs(), limit, msgTransport, nil, false)
	e.actExchange = exchange.New[uint64, struct{}](coord.SelfProc(), coord.NumProcs(), limit, actTransport, nil, background)
	e.gatherExchange = exchange.New[uint64, G](coord.SelfProc(), coord.NumProcs(), limit, gatherTransport, nil, background)
	e.vdataExchange = exchange.New[uint64, interface{}](coord.SelfProc(), coord.NumProcs(), limit, vdataTransport, nil, false)
	e.progExchange = exchange.New[uint64, []byte](coord.SelfProc(), coord.NumProcs(), limit, progTransport, nil, background)

	e.quiescence = converger.NewConverger(-1, func(converged bool) error {
		e.logf("local quiescence: %v", converged)
		return nil
	})
	e.convActive = e.quiescence.Register()
	e.convActive.SetName("active-vertices")
	e.convPending = e.quiescence.Register()
	e.convPending.SetName("pending-signals")
	go e.quiescence.Loop(false)

	return e
}

// MessageExchange exposes the per-vertex message exchange so a caller can
// wire it to a transport after construction (the transports on either end
// of a cluster link need each other's exchange to deliver into, which is
// only available once both engines exist) or inspect it for monitoring.
func (e *SyncEngine[M, G]) MessageExchange() *exchange.BufferedExchange[uint64, M] {
	return e.msgExchange
}

// ActivationExchange exposes the per-vertex activation-broadcast exchange.
func (e *SyncEngine[M, G]) ActivationExchange() *exchange.BufferedExchange[uint64, struct{}] {
	return e.actExchange
}

// GatherExchange exposes the per-vertex gather-partial exchange.
func (e *SyncEngine[M, G]) GatherExchange() *exchange.BufferedExchange[uint64, G] {
	return e.gatherExchange
}

// VertexDataExchange exposes the per-vertex data-broadcast exchange.
func (e *SyncEngine[M, G]) VertexDataExchange() *exchange.BufferedExchange[uint64, interface{}] {
	return e.vdataExchange
}

// ProgramExchange exposes the per-vertex program-state broadcast exchange
// (spec.md section 6's "program exchange": (global_vid, program_state)).
func (e *SyncEngine[M, G]) ProgramExchange() *exchange.BufferedExchange[uint64, []byte] {
	return e.progExchange
}

func (e *SyncEngine[M, G]) logf(format string, v ...interface{}) {
	if e.Logf == nil {
		return
	}
	e.Logf("engine(%s): "+format, append([]interface{}{e.runID}, v...)...)
}

// RunID returns this run's correlation id, stamped into log lines and used
// as the "run" label on prometheus metrics.
func (e *SyncEngine[M, G]) RunID() string { return e.runID }

// State returns the engine's current lifecycle state.
func (e *SyncEngine[M, G]) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Iteration returns the number of completed iterations.
func (e *SyncEngine[M, G]) Iteration() int { return e.iteration }

// CompletedTasks is a thread-safe live read of the completed vertex-program
// invocation count, available during a run, not only after it ends
// (from the PowerGraph original, per SPEC_FULL.md section C).
func (e *SyncEngine[M, G]) CompletedTasks() int64 {
	return atomic.LoadInt64(&e.completedTasks)
}

// VertexData returns the current value this machine holds for globalVID
// (authoritative if this machine masters it, replicated otherwise), and
// whether this machine has seen that vertex at all.
func (e *SyncEngine[M, G]) VertexData(globalVID uint64) (interface{}, bool) {
	local, ok := e.graph.LocalID(globalVID)
	if !ok {
		return nil, false
	}
	return e.vdata[local], true
}

// Program returns the Program instance this machine currently holds for
// globalVID (the authoritative copy if this machine masters it, whatever the
// program exchange last installed otherwise), and whether this machine has
// constructed one at all. Mainly useful for tests asserting that a mirror's
// own program state (vprog.ProgramState), not just its vertex data, tracks
// the master's.
func (e *SyncEngine[M, G]) Program(globalVID uint64) (vprog.Program[M, G], bool) {
	local, ok := e.graph.LocalID(globalVID)
	if !ok {
		return nil, false
	}
	prog := e.programs.Get(local)
	return prog, prog != nil
}

// LocallyQuiescent reports whether this machine currently has no active
// vertex and no pending signal, for status/debug surfaces; the
// cluster-wide, correctness-relevant termination check lives in Run.
func (e *SyncEngine[M, G]) LocallyQuiescent() bool {
	return e.convActive.IsQuiesced() && e.convPending.IsQuiesced()
}

func (e *SyncEngine[M, G]) incCompletedTasks() {
	atomic.AddInt64(&e.completedTasks, 1)
}

// Stop requests that Run end at the next opportunity with
// StatusForcedAbort. Safe to call from any goroutine, at any time.
func (e *SyncEngine[M, G]) Stop() {
	atomic.StoreInt32(&e.forcedAbort, 1)
}

func (e *SyncEngine[M, G]) newContext(ctx context.Context, l int) vprog.Context[M] {
	return &vertexContext[M, G]{ctx: ctx, engine: e, local: l, iteration: e.iteration}
}

// signal implements vprog.Context.Signal and the public Signal/SignalAll
// API: route msg to the owner of globalVID, combining locally or handing
// off to the message exchange. A local signal schedules globalVID onto
// activeNext, not active: it takes effect starting at the next P1, the
// same iteration boundary a remote signal crosses once its machine flushes
// and the owner drains it (spec.md section 4.5's activate_next/signal
// distinction, SPEC_FULL.md section C item 4).
func (e *SyncEngine[M, G]) signal(ctx context.Context, globalVID uint64, msg M) error {
	atomic.AddInt64(&e.pendingSignals, 1)

	owner := e.graph.OwnerOf(globalVID)
	if owner == e.coord.SelfProc() {
		local, ok := e.graph.LocalID(globalVID)
		if !ok {
			return fmt.Errorf("engine: signal targets unregistered vertex %d", globalVID)
		}
		e.messages.Add(local, msg)
		e.activeNext.SetBit(local)
		if e.Opts.UseGatherCache {
			e.gatherCacheValid.ClearBit(local)
		}
		return nil
	}
	return e.msgExchange.Send(ctx, owner, globalVID, msg)
}

// Signal seeds globalVID with msg from outside the engine, before Run or
// between Run calls, the way a caller kicks off a PageRank source set or an
// SSSP root (spec.md section 6's signal API).
func (e *SyncEngine[M, G]) Signal(ctx context.Context, globalVID uint64, msg M) error {
	return e.signal(ctx, globalVID, msg)
}

// SignalAll activates every vertex this machine masters with msg, used to
// seed a run where every vertex starts active (eg: PageRank's first
// iteration).
func (e *SyncEngine[M, G]) SignalAll(msg M) {
	n := e.graph.NumLocal()
	for l := 0; l < n; l++ {
		if !e.graph.IsMaster(l) {
			continue
		}
		e.messages.Add(l, msg)
		e.activeNext.SetBit(l)
		atomic.AddInt64(&e.pendingSignals, 1)
	}
}

// Init runs Program.Init once per locally-mastered vertex, striped over the
// worker pool, then crosses a cluster barrier so no machine starts P1
// before every other machine has finished initializing.
func (e *SyncEngine[M, G]) Init(ctx context.Context) error {
	e.stateMu.Lock()
	if e.state != StateCreated {
		st := e.state
		e.stateMu.Unlock()
		return fmt.Errorf("engine: Init called in state %s, expected %s", st, StateCreated)
	}
	e.stateMu.Unlock()

	n := e.graph.NumLocal()
	err := e.pool.RunPhase(func(id, w int, barrier *workers.Barrier) error {
		return workers.Stripe(id, w, n, func(l int) error {
			if !e.graph.IsMaster(l) {
				return nil
			}
			prog, err := e.programs.Ensure(l)
			if err != nil {
				return err
			}
			return prog.Init(e.newContext(ctx, l))
		})
	})
	if err != nil {
		return errwrap.Wrapf(err, "init")
	}
	if err := e.coord.Barrier(ctx); err != nil {
		return errwrap.Wrapf(err, "init barrier")
	}

	e.stateMu.Lock()
	e.state = StateInitialized
	e.stateMu.Unlock()
	e.logf("initialized %d local vertices", n)
	return nil
}

// Run executes iterations until quiescence, a configured limit, the
// termination function, Stop, or ctx is done, and reports which.
func (e *SyncEngine[M, G]) Run(ctx context.Context) (ExecStatus, error) {
	e.stateMu.Lock()
	if e.state != StateInitialized {
		st := e.state
		e.stateMu.Unlock()
		return StatusUnset, fmt.Errorf("engine: Run called in state %s, expected %s", st, StateInitialized)
	}
	e.state = StateRunning
	e.stateMu.Unlock()

	var cancel context.CancelFunc
	if e.Opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.Opts.Timeout)
		defer cancel()
	}

	status := StatusNoMoreTasks
	var runErr error

loop:
	for {
		if atomic.LoadInt32(&e.forcedAbort) == 1 {
			status = StatusForcedAbort
			break
		}
		select {
		case <-ctx.Done():
			status = StatusTimeout
			break loop
		default:
		}
		if e.Opts.MaxIterations > 0 && e.iteration >= e.Opts.MaxIterations {
			status = StatusTaskBudgetExceeded
			break
		}
		if e.Opts.MaxTasks > 0 && e.CompletedTasks() >= e.Opts.MaxTasks {
			status = StatusTaskBudgetExceeded
			break
		}
		if e.Opts.TermFunc != nil && e.Opts.TermFunc() {
			status = StatusTermFunction
			break
		}

		atomic.StoreInt64(&e.pendingSignals, 0)
		e.logf("iteration %d: starting P1-P4", e.iteration)
		iterStart := time.Now()
		tasksBefore := e.CompletedTasks()

		if err := e.phaseP1(ctx); err != nil {
			runErr = errwrap.Phase("P1", err)
			break
		}
		if e.Metrics != nil {
			e.Metrics.SetActiveVertices(e.runID, e.active.Count())
		}
		if err := e.phaseP2(ctx); err != nil {
			runErr = errwrap.Phase("P2", err)
			break
		}
		if err := e.phaseP3(ctx); err != nil {
			runErr = errwrap.Phase("P3", err)
			break
		}
		if err := e.phaseP4(ctx); err != nil {
			runErr = errwrap.Phase("P4", err)
			break
		}

		e.iteration++

		localPending := atomic.LoadInt64(&e.pendingSignals) > 0
		e.convActive.SetQuiesced(e.active.Empty())
		e.convPending.SetQuiesced(!localPending)
		if e.Metrics != nil {
			e.Metrics.ObserveIterationDuration(e.runID, time.Since(iterStart).Seconds())
			e.Metrics.IncCompletedTasks(e.runID, int(e.CompletedTasks()-tasksBefore))
		}

		anyPending, err := e.coord.AllReduceOr(ctx, fmt.Sprintf("iter-%d-pending", e.iteration), localPending)
		if err != nil {
			runErr = errwrap.Wrapf(err, "iteration closure all-reduce")
			break
		}
		if !anyPending {
			status = StatusNoMoreTasks
			break
		}
	}

	e.stateMu.Lock()
	e.state = StateDone
	e.stateMu.Unlock()
	e.logf("run ended after %d iterations: %s", e.iteration, status)

	if runErr != nil {
		return status, runErr
	}
	return status, nil
}
