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

// Package atomicvec implements a fixed-length vector of optional, combinable
// slots. It backs the engine's message_slot and gather_slot arrays: many
// worker goroutines may Add into the same index concurrently (one per
// incoming edge), and the engine later drains the combined value exactly
// once with TestAndGet.
package atomicvec

import (
	"fmt"
	"sync"
)

// Combiner merges a newly-added value into the one already occupying a slot.
// It must be associative and commutative: the result of folding any
// permutation of concurrent adds into the same slot must be identical.
type Combiner[T any] func(current, next T) T

// AtomicAddVector holds one optional, combinable slot per index in [0, N).
// Every method is safe for concurrent use except Resize, which must only be
// called once, before any Add/TestAndGet call, from a single goroutine.
type AtomicAddVector[T any] struct {
	combine Combiner[T]

	mu     []sync.Mutex
	filled []bool
	value  []T
}

// NewAtomicAddVector builds a vector of size n using combine to fold
// concurrent adds into the same slot.
func NewAtomicAddVector[T any](n int, combine Combiner[T]) *AtomicAddVector[T] {
	v := &AtomicAddVector[T]{combine: combine}
	v.Resize(n)
	return v
}

// Resize (re)allocates the vector to hold n slots, all initially empty. It is
// single-threaded and must only be called at initialization.
func (v *AtomicAddVector[T]) Resize(n int) {
	v.mu = make([]sync.Mutex, n)
	v.filled = make([]bool, n)
	v.value = make([]T, n)
}

func (v *AtomicAddVector[T]) checkIndex(i int) {
	if i < 0 || i >= len(v.value) {
		panic(fmt.Sprintf("atomicvec: index %d out of range [0, %d)", i, len(v.value)))
	}
}

// Add combines val into slot i. If the slot is currently empty, val is
// stored directly; otherwise the slot becomes combine(current, val). This is
// linearizable against any other concurrent Add or TestAndGet on index i.
func (v *AtomicAddVector[T]) Add(i int, val T) {
	v.checkIndex(i)
	v.mu[i].Lock()
	defer v.mu[i].Unlock()
	if !v.filled[i] {
		v.value[i] = val
		v.filled[i] = true
		return
	}
	v.value[i] = v.combine(v.value[i], val)
}

// TestAndGet atomically moves the contents of slot i into *out and empties
// the slot. It returns false, leaving *out untouched, if the slot was empty.
func (v *AtomicAddVector[T]) TestAndGet(i int, out *T) bool {
	v.checkIndex(i)
	v.mu[i].Lock()
	defer v.mu[i].Unlock()
	if !v.filled[i] {
		return false
	}
	*out = v.value[i]
	var zero T
	v.value[i] = zero
	v.filled[i] = false
	return true
}

// Empty reports whether slot i currently holds no value. This is
// observational: a concurrent Add or TestAndGet may change the answer the
// instant after this returns, but it never observes a half-written value.
func (v *AtomicAddVector[T]) Empty(i int) bool {
	v.checkIndex(i)
	v.mu[i].Lock()
	defer v.mu[i].Unlock()
	return !v.filled[i]
}

// Len returns the number of slots.
func (v *AtomicAddVector[T]) Len() int {
	return len(v.value)
}
