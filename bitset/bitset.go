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

// Package bitset implements a fixed-size, word-granular concurrent bitset
// used by the engine to track which local vertex ids participate in the
// current or next phase of a BSP iteration.
package bitset

import (
	"fmt"
	"sync/atomic"
)

const bitsPerWord = 64

// DenseBitset is a fixed-length bitset sized once at construction. Every
// operation is safe to call concurrently from many worker goroutines; each
// underlying word is mutated with a compare-and-swap loop so that set_bit and
// clear_bit never torn-write a neighboring bit in the same word.
type DenseBitset struct {
	words []uint64
	nbits int
}

// NewDenseBitset allocates a bitset able to hold indices in [0, n).
func NewDenseBitset(n int) *DenseBitset {
	nwords := (n + bitsPerWord - 1) / bitsPerWord
	if nwords == 0 {
		nwords = 1
	}
	return &DenseBitset{
		words: make([]uint64, nwords),
		nbits: n,
	}
}

// Len returns the number of addressable bits.
func (b *DenseBitset) Len() int {
	return b.nbits
}

func (b *DenseBitset) wordAndMask(i int) (int, uint64) {
	if i < 0 || i >= b.nbits {
		panic(fmt.Sprintf("bitset: index %d out of range [0, %d)", i, b.nbits))
	}
	return i / bitsPerWord, uint64(1) << uint(i%bitsPerWord)
}

// SetBit sets bit i and returns whether it changed the bit (false if it was
// already set).
func (b *DenseBitset) SetBit(i int) bool {
	w, mask := b.wordAndMask(i)
	for {
		old := atomic.LoadUint64(&b.words[w])
		if old&mask != 0 {
			return false // already set
		}
		if atomic.CompareAndSwapUint64(&b.words[w], old, old|mask) {
			return true
		}
	}
}

// ClearBit clears bit i and returns whether it changed the bit (false if it
// was already clear).
func (b *DenseBitset) ClearBit(i int) bool {
	w, mask := b.wordAndMask(i)
	for {
		old := atomic.LoadUint64(&b.words[w])
		if old&mask == 0 {
			return false // already clear
		}
		if atomic.CompareAndSwapUint64(&b.words[w], old, old&^mask) {
			return true
		}
	}
}

// Get returns whether bit i is set. This is an observational read; it is
// linearizable against individual SetBit/ClearBit calls on the same bit, but
// makes no promise about which of several concurrent writers it observed.
func (b *DenseBitset) Get(i int) bool {
	w, mask := b.wordAndMask(i)
	return atomic.LoadUint64(&b.words[w])&mask != 0
}

// ClearAll resets every bit to zero. Not safe to call concurrently with
// SetBit/ClearBit on the same bitset; intended for use at a phase boundary
// when no worker holds a reference to the bitset yet.
func (b *DenseBitset) ClearAll() {
	for i := range b.words {
		atomic.StoreUint64(&b.words[i], 0)
	}
}

// Empty returns true if no bit is set. Racy against concurrent writers, like
// Get; useful as a quick pre-check before a more expensive scan.
func (b *DenseBitset) Empty() bool {
	for i := range b.words {
		if atomic.LoadUint64(&b.words[i]) != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set bits. Racy against concurrent writers,
// like Get; intended for periodic reporting (eg an active-vertex gauge),
// not for anything load-bearing.
func (b *DenseBitset) Count() int {
	n := 0
	for i := 0; i < b.nbits; i++ {
		if b.Get(i) {
			n++
		}
	}
	return n
}

// NextSetBit scans forward from (and including) cursor for the next set bit
// and returns its index and true, or (-1, false) if none remain. A caller
// walks every set bit by passing the previous index plus one each time.
func (b *DenseBitset) NextSetBit(cursor int) (int, bool) {
	if cursor < 0 {
		cursor = 0
	}
	for i := cursor; i < b.nbits; i++ {
		if b.Get(i) {
			return i, true
		}
	}
	return -1, false
}
