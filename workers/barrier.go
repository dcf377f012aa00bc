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

package workers

import (
	"sync"
)

// Barrier is a reusable, cyclic rendezvous point for a fixed number of
// worker goroutines. It is what a phase uses mid-phase to sequence a flush
// against a drain: every worker calls Wait, and none return until all have
// arrived. Unlike sync.WaitGroup, a Barrier can be reused across many
// rendezvous points in the same phase.
type Barrier struct {
	n int

	mu      sync.Mutex
	count   int
	turn    int
	release chan struct{}
}

// NewBarrier builds a barrier for n participants.
func NewBarrier(n int) *Barrier {
	return &Barrier{
		n:       n,
		release: make(chan struct{}),
	}
}

// Wait blocks until all n participants have called Wait for the current
// turn, then releases them all together.
func (b *Barrier) Wait() {
	if b.n <= 1 {
		return
	}
	b.mu.Lock()
	b.count++
	if b.count == b.n {
		// last one in: flip the turn and release everyone waiting on
		// the old channel.
		b.count = 0
		b.turn++
		ch := b.release
		b.release = make(chan struct{})
		b.mu.Unlock()
		close(ch)
		return
	}
	ch := b.release
	b.mu.Unlock()

	<-ch
}
