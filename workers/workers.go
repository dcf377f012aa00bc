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

// Package workers implements the engine's fixed-size, per-machine worker
// pool. Each phase of a BSP iteration is dispatched to the pool as a single
// striped parallel loop over local vertex ids, with an intra-pool barrier
// available to sequence a mid-phase flush/drain handoff.
package workers

import (
	"fmt"
	"sync"

	"github.com/purpleidea/gasengine/util/errwrap"

	multierr "github.com/hashicorp/go-multierror"
)

// PhaseFunc is run once per worker goroutine. id is this worker's thread id
// in [0, w); w is the pool size; barrier is a rendezvous point the function
// may call Wait on, any number of times, to synchronize with the other w-1
// workers mid-phase (eg: the coordinator flushes an exchange, the barrier is
// crossed, then every worker drains inbound buffers).
type PhaseFunc func(id int, w int, barrier *Barrier) error

// PhaseWorkers holds a fixed pool of W logical worker slots. RunPhase
// dispatches a PhaseFunc to each slot as a goroutine and joins on
// completion, aggregating any errors.
type PhaseWorkers struct {
	W int

	Logf func(format string, v ...interface{})
}

// NewPhaseWorkers builds a pool with w worker slots.
func NewPhaseWorkers(w int) *PhaseWorkers {
	if w < 1 {
		w = 1
	}
	return &PhaseWorkers{W: w}
}

// RunPhase dispatches fn to each of the W worker slots and blocks until all
// have returned. Errors from individual workers are aggregated via
// util/errwrap (hashicorp/go-multierror) and returned together; one
// worker's error does not stop the others from finishing this phase, since
// the spec requires that faults only take effect at the next barrier.
func (p *PhaseWorkers) RunPhase(fn PhaseFunc) error {
	barrier := NewBarrier(p.W)
	var wg sync.WaitGroup
	errs := make([]error, p.W)

	wg.Add(p.W)
	for id := 0; id < p.W; id++ {
		go func(id int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if p.Logf != nil {
						p.Logf("worker %d: panic: %v", id, r)
					}
					errs[id] = fmt.Errorf("worker %d panicked: %v", id, r)
				}
			}()
			errs[id] = fn(id, p.W, barrier)
		}(id)
	}
	wg.Wait()

	var reterr error
	for id, err := range errs {
		if err == nil {
			continue
		}
		reterr = multierr.Append(reterr, errwrap.Wrapf(err, "worker %d", id))
	}
	return reterr
}

// Stripe calls visit(l) for every local vertex id l in [0, n) assigned to
// worker `id` of `w`, ie: l such that l % w == id. This is the striped
// iteration order every phase in spec.md section 4.5 uses.
func Stripe(id, w, n int, visit func(l int) error) error {
	var reterr error
	for l := id; l < n; l += w {
		if err := visit(l); err != nil {
			reterr = multierr.Append(reterr, err)
		}
	}
	return reterr
}
