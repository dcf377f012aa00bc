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

package atomicvec

import (
	"sync"
	"testing"
)

func sum(a, b int) int { return a + b }

func TestAddThenTestAndGet(t *testing.T) {
	v := NewAtomicAddVector[int](4, sum)

	var out int
	if v.TestAndGet(0, &out) {
		t.Fatalf("expected empty slot to return false")
	}

	v.Add(0, 3)
	v.Add(0, 4)
	if !v.TestAndGet(0, &out) || out != 7 {
		t.Fatalf("got (%v, %d), expected (true, 7)", true, out)
	}
	if !v.Empty(0) {
		t.Fatalf("expected slot to be empty after TestAndGet")
	}
}

// TestCombinerAgnosticism verifies the invariant from spec.md section 8:
// the value observed at drain equals the fold of all concurrent adds under
// the combiner, independent of arrival order.
func TestCombinerAgnosticism(t *testing.T) {
	const n = 200
	v := NewAtomicAddVector[int](1, sum)

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(x int) {
			defer wg.Done()
			v.Add(0, x)
		}(i)
	}
	wg.Wait()

	var out int
	if !v.TestAndGet(0, &out) {
		t.Fatalf("expected a combined value")
	}
	want := n * (n + 1) / 2
	if out != want {
		t.Fatalf("got %d, expected %d", out, want)
	}
}
