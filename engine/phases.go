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

	"github.com/purpleidea/gasengine/exchange"
	"github.com/purpleidea/gasengine/util/errwrap"
	"github.com/purpleidea/gasengine/vprog"
	"github.com/purpleidea/gasengine/workers"
)

// phaseP1 is "message receive & activation" (spec.md section 4.5): drain
// messages delivered since the last barrier, hand the combined message to
// each newly-active master's RecvMessage, then broadcast that activation to
// every mirror so it knows to join P2. Alongside the activation broadcast,
// any active master whose Program implements vprog.ProgramState has its
// current program state marshaled and shipped to every mirror over the
// program exchange, and installed there before P2 runs, so a mirror's own
// Gather or Scatter never reads state the master has already moved past.
func (e *SyncEngine[M, G]) phaseP1(ctx context.Context) error {
	// Promote whatever was scheduled while the previous iteration's P4
	// ran (local signals) into this iteration's active set, and reuse
	// the now-stale previous active set as the next scratch buffer.
	e.active, e.activeNext = e.activeNext, e.active
	e.activeNext.ClearAll()

	var inbound []exchange.Entry[uint64, M]
	for e.msgExchange.Drain(&inbound) {
		for _, entry := range inbound {
			local := e.graph.Ensure(entry.Key)
			if local >= len(e.vdata) {
				return fmt.Errorf("message for vertex %d exceeds the local graph's loaded size; dynamic growth during a run is unsupported", entry.Key)
			}
			e.messages.Add(local, entry.Value)
			e.active.SetBit(local)
			if e.Opts.UseGatherCache {
				e.gatherCacheValid.ClearBit(local)
			}
		}
	}

	n := e.graph.NumLocal()
	if err := e.pool.RunPhase(func(id, w int, barrier *workers.Barrier) error {
		return workers.Stripe(id, w, n, func(l int) error {
			if !e.graph.IsMaster(l) || !e.active.Get(l) {
				return nil
			}
			var msg M
			if !e.messages.TestAndGet(l, &msg) {
				return nil
			}
			prog, err := e.programs.Ensure(l)
			if err != nil {
				return err
			}
			return prog.RecvMessage(e.newContext(ctx, l), msg)
		})
	}); err != nil {
		return errwrap.Wrapf(err, "recv_message")
	}

	for l := 0; l < n; l++ {
		if !e.graph.IsMaster(l) || !e.active.Get(l) {
			continue
		}
		mirrors := e.graph.Mirrors(l)
		if len(mirrors) == 0 {
			continue
		}

		var payload []byte
		var hasState bool
		if prog, err := e.programs.Ensure(l); err != nil {
			return errwrap.Wrapf(err, "program exchange marshal")
		} else if ps, ok := prog.(vprog.ProgramState); ok {
			payload, err = ps.MarshalProgramState()
			if err != nil {
				return errwrap.Wrapf(err, "marshal program state for vertex %d", e.graph.GlobalID(l))
			}
			hasState = true
		}

		for _, mirror := range mirrors {
			if err := e.actExchange.Send(ctx, mirror, e.graph.GlobalID(l), struct{}{}); err != nil {
				return errwrap.Wrapf(err, "activation broadcast")
			}
			if hasState {
				if err := e.progExchange.Send(ctx, mirror, e.graph.GlobalID(l), payload); err != nil {
					return errwrap.Wrapf(err, "program state broadcast")
				}
			}
		}
	}
	if err := e.actExchange.Flush(ctx); err != nil {
		return errwrap.Wrapf(err, "activation flush")
	}
	if err := e.progExchange.Flush(ctx); err != nil {
		return errwrap.Wrapf(err, "program state flush")
	}
	if e.Metrics != nil {
		e.Metrics.IncExchangeFlushes(e.runID, "activation")
		e.Metrics.IncExchangeFlushes(e.runID, "program")
	}
	if err := e.coord.Barrier(ctx); err != nil {
		return errwrap.Wrapf(err, "P1 barrier")
	}

	var actInbound []exchange.Entry[uint64, struct{}]
	for e.actExchange.Drain(&actInbound) {
		for _, entry := range actInbound {
			local, ok := e.graph.LocalID(entry.Key)
			if !ok {
				continue // this machine holds no replica of that vertex
			}
			e.active.SetBit(local)
		}
	}

	var progInbound []exchange.Entry[uint64, []byte]
	for e.progExchange.Drain(&progInbound) {
		for _, entry := range progInbound {
			local, ok := e.graph.LocalID(entry.Key)
			if !ok {
				continue // this machine holds no replica of that vertex
			}
			prog, err := e.programs.Ensure(local)
			if err != nil {
				return errwrap.Wrapf(err, "program exchange install")
			}
			ps, ok := prog.(vprog.ProgramState)
			if !ok {
				continue // program carries no state beyond vertex data
			}
			if err := ps.UnmarshalProgramState(entry.Value); err != nil {
				return errwrap.Wrapf(err, "unmarshal program state for vertex %d", entry.Key)
			}
		}
	}
	return e.coord.Barrier(ctx)
}

// phaseP2 is "parallel gather" (spec.md section 4.5): every active replica
// folds its local incident edges into a partial with the program's
// GatherCombiner, masters keep their own partial, mirrors send theirs to
// the master, which then folds every partial it received into gatherTotal.
func (e *SyncEngine[M, G]) phaseP2(ctx context.Context) error {
	n := e.graph.NumLocal()
	if err := e.pool.RunPhase(func(id, w int, barrier *workers.Barrier) error {
		return workers.Stripe(id, w, n, func(l int) error {
			if !e.active.Get(l) {
				return nil
			}
			prog, err := e.programs.Ensure(l)
			if err != nil {
				return err
			}
			dir := prog.GatherEdges()
			if dir == vprog.NoEdges {
				return nil
			}

			var partial G
			if e.Opts.UseGatherCache && e.gatherCacheValid.Get(l) {
				partial = e.gatherCache[l]
			} else {
				cctx := e.newContext(ctx, l)
				first := true
				for _, edge := range e.graph.EdgesFor(l, dir) {
					g, err := prog.Gather(cctx, edge)
					if err != nil {
						return err
					}
					if first {
						partial = g
						first = false
						continue
					}
					partial = e.combiners.Gather(partial, g)
				}
				e.gatherCache[l] = partial
				e.gatherCacheValid.SetBit(l)
			}

			if e.graph.IsMaster(l) {
				e.gatherTotal.Add(l, partial)
				return nil
			}
			return e.gatherExchange.Send(ctx, e.graph.Owner(l), e.graph.GlobalID(l), partial)
		})
	}); err != nil {
		return errwrap.Wrapf(err, "gather")
	}

	if err := e.gatherExchange.Flush(ctx); err != nil {
		return errwrap.Wrapf(err, "gather flush")
	}
	if e.Metrics != nil {
		e.Metrics.IncExchangeFlushes(e.runID, "gather")
	}
	if err := e.coord.Barrier(ctx); err != nil {
		return errwrap.Wrapf(err, "P2 barrier")
	}

	var inbound []exchange.Entry[uint64, G]
	for e.gatherExchange.Drain(&inbound) {
		for _, entry := range inbound {
			local, ok := e.graph.LocalID(entry.Key)
			if !ok {
				continue
			}
			e.gatherTotal.Add(local, entry.Value)
		}
	}
	return e.coord.Barrier(ctx)
}

// phaseP3 is "apply & data broadcast" (spec.md section 4.5): every active
// master consumes its combined gather total (the zero value of G if
// GatherEdges() == NoEdges), applies it, and broadcasts the resulting
// vertex data to every mirror.
func (e *SyncEngine[M, G]) phaseP3(ctx context.Context) error {
	n := e.graph.NumLocal()
	if err := e.pool.RunPhase(func(id, w int, barrier *workers.Barrier) error {
		return workers.Stripe(id, w, n, func(l int) error {
			if !e.graph.IsMaster(l) || !e.active.Get(l) {
				return nil
			}
			prog, err := e.programs.Ensure(l)
			if err != nil {
				return err
			}
			var gathered G
			e.gatherTotal.TestAndGet(l, &gathered)
			if err := prog.Apply(e.newContext(ctx, l), gathered); err != nil {
				return err
			}
			e.incCompletedTasks()

			for _, mirror := range e.graph.Mirrors(l) {
				if err := e.vdataExchange.Send(ctx, mirror, e.graph.GlobalID(l), e.vdata[l]); err != nil {
					return err
				}
			}
			return nil
		})
	}); err != nil {
		return errwrap.Wrapf(err, "apply")
	}

	if err := e.vdataExchange.Flush(ctx); err != nil {
		return errwrap.Wrapf(err, "vdata flush")
	}
	if e.Metrics != nil {
		e.Metrics.IncExchangeFlushes(e.runID, "vdata")
	}
	if err := e.coord.Barrier(ctx); err != nil {
		return errwrap.Wrapf(err, "P3 barrier")
	}

	var inbound []exchange.Entry[uint64, interface{}]
	for e.vdataExchange.Drain(&inbound) {
		for _, entry := range inbound {
			local, ok := e.graph.LocalID(entry.Key)
			if !ok {
				continue
			}
			e.vdata[local] = entry.Value
		}
	}
	return e.coord.Barrier(ctx)
}

// phaseP4 is "parallel scatter & re-scheduling" (spec.md section 4.5):
// every active replica visits its selected edges, calling Scatter, which
// may call ctx.Signal to schedule a neighbor onto activeNext for the next
// iteration. This iteration's active set is left untouched here; the next
// iteration's P1 promotes activeNext in its place.
func (e *SyncEngine[M, G]) phaseP4(ctx context.Context) error {
	n := e.graph.NumLocal()
	if err := e.pool.RunPhase(func(id, w int, barrier *workers.Barrier) error {
		return workers.Stripe(id, w, n, func(l int) error {
			if !e.active.Get(l) {
				return nil
			}
			prog, err := e.programs.Ensure(l)
			if err != nil {
				return err
			}
			dir := prog.ScatterEdges()
			if dir == vprog.NoEdges {
				return nil
			}
			cctx := e.newContext(ctx, l)
			for _, edge := range e.graph.EdgesFor(l, dir) {
				if err := prog.Scatter(cctx, edge); err != nil {
					return err
				}
			}
			return nil
		})
	}); err != nil {
		return errwrap.Wrapf(err, "scatter")
	}

	if err := e.msgExchange.Flush(ctx); err != nil {
		return errwrap.Wrapf(err, "message flush")
	}
	if e.Metrics != nil {
		e.Metrics.IncExchangeFlushes(e.runID, "message")
	}
	if err := e.coord.Barrier(ctx); err != nil {
		return errwrap.Wrapf(err, "P4 barrier")
	}

	return nil
}
