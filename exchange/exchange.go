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

// Package exchange implements BufferedExchange[K,V], the per-destination
// batching layer phases use to move (key, value) pairs between machines
// without a network round trip per item (spec.md section 4.3). A send
// appends to an in-memory per-destination buffer; a flush is the only point
// a batch actually leaves the process, and happens at a phase boundary or
// when a send fills a destination's buffer to its limit, not on every send.
package exchange

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/purpleidea/gasengine/util/errwrap"
)

// DefaultBufferLimit is the per-destination entry count that triggers an
// automatic flush of that destination's buffer, independent of an explicit
// Flush call, so a hot destination can't grow its pending buffer without
// bound between barriers.
const DefaultBufferLimit = 4096

// Entry pairs a destination-addressed key with its payload. K is normally
// the target's local or global vertex id; V is whatever the calling phase
// is moving (a message, a gather partial, a vertex-data broadcast).
type Entry[K any, V any] struct {
	Key   K
	Value V
}

// Transport delivers one destination's batch to the remote process that
// owns it. gasrpc (grpc-based, see rpc package) is the production
// implementation; tests use an in-memory loopback.
type Transport[K any, V any] interface {
	SendBatch(ctx context.Context, destProc int, entries []Entry[K, V]) error
}

// BufferedExchange batches outgoing (key, value) pairs per destination
// process and drains inbound ones delivered by the Transport. One instance
// exists per message kind per machine (eg: one for messages, one for
// gather-partials, one for vertex-data broadcasts), matching the teacher's
// pattern of a dedicated collaborator per concern rather than one do-it-all
// object.
type BufferedExchange[K any, V any] struct {
	selfProc   int
	numProcs   int
	limit      int
	transport  Transport[K, V]
	limiter    *rate.Limiter
	background bool

	Logf func(format string, v ...interface{})

	mu      []sync.Mutex
	pending [][]Entry[K, V]

	inmu  sync.Mutex
	inbox []Entry[K, V]

	bgWG    sync.WaitGroup
	bgErrMu sync.Mutex
	bgErr   error
}

// New builds an exchange for selfProc of numProcs total processes. limit <=
// 0 uses DefaultBufferLimit. limiter may be nil, in which case flushes are
// never throttled. background selects whether a limit-triggered Send flush
// and a phase-end Flush run each destination concurrently, in its own
// goroutine, rather than serially on the caller's goroutine; it exists so
// SyncOptions.NoBackgroundComms can disable the overlap for simpler failure
// semantics, per the PowerGraph original.
func New[K any, V any](selfProc, numProcs, limit int, transport Transport[K, V], limiter *rate.Limiter, background bool) *BufferedExchange[K, V] {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &BufferedExchange[K, V]{
		selfProc:   selfProc,
		numProcs:   numProcs,
		limit:      limit,
		transport:  transport,
		limiter:    limiter,
		background: background,
		mu:         make([]sync.Mutex, numProcs),
		pending:    make([][]Entry[K, V], numProcs),
	}
}

// Send appends (k, v) to destProc's pending buffer. A send to selfProc
// loops back directly into the inbox without touching the transport, since
// a vertex is always free to message itself or a co-located mirror. If the
// destination's buffer reaches the configured limit, Send flushes it
// inline rather than let it grow unbounded.
func (e *BufferedExchange[K, V]) Send(ctx context.Context, destProc int, k K, v V) error {
	if destProc == e.selfProc {
		e.inmu.Lock()
		e.inbox = append(e.inbox, Entry[K, V]{Key: k, Value: v})
		e.inmu.Unlock()
		return nil
	}

	e.mu[destProc].Lock()
	e.pending[destProc] = append(e.pending[destProc], Entry[K, V]{Key: k, Value: v})
	full := len(e.pending[destProc]) >= e.limit
	e.mu[destProc].Unlock()

	if full {
		if e.background {
			e.bgWG.Add(1)
			go func() {
				defer e.bgWG.Done()
				if err := e.flushOne(ctx, destProc); err != nil {
					e.recordBgErr(errwrap.Wrapf(err, "background flush to proc %d", destProc))
				}
			}()
			return nil
		}
		return e.flushOne(ctx, destProc)
	}
	return nil
}

func (e *BufferedExchange[K, V]) recordBgErr(err error) {
	e.bgErrMu.Lock()
	e.bgErr = errwrap.Append(e.bgErr, err)
	e.bgErrMu.Unlock()
}

// Flush sends every destination's pending buffer through the transport and
// clears it. Called once per machine at the end of a phase, by the
// coordinator, after the phase's workers have crossed their barrier. With
// background comms enabled, every destination is flushed concurrently and
// Flush waits for all of them (plus any outstanding limit-triggered flushes
// from Send) before returning; with NoBackgroundComms, destinations are
// flushed one at a time on the caller's goroutine.
func (e *BufferedExchange[K, V]) Flush(ctx context.Context) error {
	var reterr error
	if e.background {
		var wg sync.WaitGroup
		errs := make([]error, e.numProcs)
		for dest := 0; dest < e.numProcs; dest++ {
			if dest == e.selfProc {
				continue
			}
			wg.Add(1)
			go func(dest int) {
				defer wg.Done()
				errs[dest] = e.flushOne(ctx, dest)
			}(dest)
		}
		wg.Wait()
		for dest, err := range errs {
			if err != nil {
				reterr = errwrap.Append(reterr, errwrap.Wrapf(err, "flush to proc %d", dest))
			}
		}
	} else {
		for dest := 0; dest < e.numProcs; dest++ {
			if dest == e.selfProc {
				continue
			}
			if err := e.flushOne(ctx, dest); err != nil {
				reterr = errwrap.Append(reterr, errwrap.Wrapf(err, "flush to proc %d", dest))
			}
		}
	}

	e.bgWG.Wait()
	e.bgErrMu.Lock()
	if e.bgErr != nil {
		reterr = errwrap.Append(reterr, e.bgErr)
		e.bgErr = nil
	}
	e.bgErrMu.Unlock()
	return reterr
}

func (e *BufferedExchange[K, V]) flushOne(ctx context.Context, dest int) error {
	e.mu[dest].Lock()
	batch := e.pending[dest]
	e.pending[dest] = nil
	e.mu[dest].Unlock()

	if len(batch) == 0 {
		return nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return errwrap.Wrapf(err, "rate limiter wait for proc %d", dest)
		}
	}
	if e.Logf != nil {
		e.Logf("exchange: flushing %d entries to proc %d", len(batch), dest)
	}
	return e.transport.SendBatch(ctx, dest, batch)
}

// Deliver is called by the Transport's receive side when a remote peer's
// batch arrives for this process. It merges the batch into the local
// inbox for the next Drain.
func (e *BufferedExchange[K, V]) Deliver(entries []Entry[K, V]) {
	if len(entries) == 0 {
		return
	}
	e.inmu.Lock()
	e.inbox = append(e.inbox, entries...)
	e.inmu.Unlock()
}

// Drain atomically takes everything accumulated in the inbox (local
// loopback sends plus anything Deliver-ed by the transport) and reports
// whether there was anything to take. Phases call Drain once per barrier
// crossing, per spec.md section 4.5's P1/P2 "drain inbound buffers" step.
func (e *BufferedExchange[K, V]) Drain(out *[]Entry[K, V]) bool {
	e.inmu.Lock()
	defer e.inmu.Unlock()
	if len(e.inbox) == 0 {
		return false
	}
	*out = e.inbox
	e.inbox = nil
	return true
}

// Pending reports whether any destination still has a non-empty buffer,
// that is, whether a flush is still owed. The engine does not call it; its
// closure check all-reduces whether any signal is pending instead.
func (e *BufferedExchange[K, V]) Pending() bool {
	for dest := 0; dest < e.numProcs; dest++ {
		if dest == e.selfProc {
			continue
		}
		e.mu[dest].Lock()
		n := len(e.pending[dest])
		e.mu[dest].Unlock()
		if n > 0 {
			return true
		}
	}
	return false
}
