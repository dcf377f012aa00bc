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

package rpc

import (
	"context"
	"sync"
	"testing"
)

func TestLocalBarrierReleasesTogether(t *testing.T) {
	const n = 5
	coords := NewLocalCluster(n)
	var before, after int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(c *LocalCoordinator) {
			defer wg.Done()
			mu.Lock()
			before++
			mu.Unlock()
			if err := c.Barrier(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			mu.Lock()
			after++
			if after == 1 && before != n {
				t.Errorf("barrier released early: before=%d", before)
			}
			mu.Unlock()
		}(coords[i])
	}
	wg.Wait()
	if after != n {
		t.Fatalf("got %d, expected %d", after, n)
	}
}

func TestLocalAllReduceOr(t *testing.T) {
	const n = 4
	coords := NewLocalCluster(n)
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int, c *LocalCoordinator) {
			defer wg.Done()
			local := idx == 2 // only one machine votes true
			v, err := c.AllReduceOr(context.Background(), "iter-0-pending", local)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[idx] = v
		}(i, coords[i])
	}
	wg.Wait()
	for i, v := range results {
		if !v {
			t.Fatalf("machine %d saw false, expected the OR across all to be true", i)
		}
	}
}

func TestLocalAllReduceSum(t *testing.T) {
	const n = 5
	coords := NewLocalCluster(n)
	results := make([]int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int, c *LocalCoordinator) {
			defer wg.Done()
			v, err := c.AllReduceSum(context.Background(), "iter-0-completed", int64(idx+1))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[idx] = v
		}(i, coords[i])
	}
	wg.Wait()
	want := int64(1 + 2 + 3 + 4 + 5)
	for i, v := range results {
		if v != want {
			t.Fatalf("machine %d got sum %d, expected %d", i, v, want)
		}
	}
}

func TestLocalAllReduceKeyIsReusable(t *testing.T) {
	const n = 2
	coords := NewLocalCluster(n)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(c *LocalCoordinator) {
			defer wg.Done()
			if _, err := c.AllReduceSum(ctx, "recurring", 1); err != nil {
				t.Errorf("round 1: unexpected error: %v", err)
			}
		}(coords[i])
	}
	wg.Wait()

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(c *LocalCoordinator) {
			defer wg.Done()
			v, err := c.AllReduceSum(ctx, "recurring", 10)
			if err != nil {
				t.Errorf("round 2: unexpected error: %v", err)
				return
			}
			if v != 20 {
				t.Errorf("round 2: got %d, expected 20", v)
			}
		}(coords[i])
	}
	wg.Wait()
}
