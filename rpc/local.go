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
	"fmt"
	"sync"
)

// localHub is the shared rendezvous state a set of LocalCoordinator handles
// coordinate through. It plays the role the etcd cluster plays for
// EtcdCoordinator, but in memory, for single-process tests and for
// cmd/gasrun's single-machine demo mode.
type localHub struct {
	numProcs int

	mu      sync.Mutex
	gen     int
	count   int
	release chan struct{}

	reduceMu sync.Mutex
	reduce   map[string]*reduceState
}

type reduceState struct {
	count  int
	orVal  bool
	sumVal int64
	done   chan struct{}
}

// LocalCoordinator is one machine's handle onto a localHub.
type LocalCoordinator struct {
	hub  *localHub
	self int
}

// NewLocalCluster builds numProcs LocalCoordinator handles sharing one hub,
// simulating a cluster of numProcs machines inside a single process.
func NewLocalCluster(numProcs int) []*LocalCoordinator {
	hub := &localHub{
		numProcs: numProcs,
		release:  make(chan struct{}),
		reduce:   make(map[string]*reduceState),
	}
	coords := make([]*LocalCoordinator, numProcs)
	for i := range coords {
		coords[i] = &LocalCoordinator{hub: hub, self: i}
	}
	return coords
}

// NumProcs implements Coordinator.
func (c *LocalCoordinator) NumProcs() int { return c.hub.numProcs }

// SelfProc implements Coordinator.
func (c *LocalCoordinator) SelfProc() int { return c.self }

// Barrier implements Coordinator with the same cyclic-rendezvous shape as
// workers.Barrier, scaled to cluster-wide participants instead of
// same-machine worker goroutines.
func (c *LocalCoordinator) Barrier(ctx context.Context) error {
	if c.hub.numProcs <= 1 {
		return nil
	}
	c.hub.mu.Lock()
	c.hub.count++
	if c.hub.count == c.hub.numProcs {
		c.hub.count = 0
		c.hub.gen++
		ch := c.hub.release
		c.hub.release = make(chan struct{})
		c.hub.mu.Unlock()
		close(ch)
		return nil
	}
	ch := c.hub.release
	c.hub.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rpc: barrier wait canceled: %w", ctx.Err())
	}
}

func (c *LocalCoordinator) joinReduce(ctx context.Context, key string, contribute func(*reduceState)) (*reduceState, error) {
	c.hub.reduceMu.Lock()
	state, ok := c.hub.reduce[key]
	if !ok {
		state = &reduceState{done: make(chan struct{})}
		c.hub.reduce[key] = state
	}
	contribute(state)
	state.count++
	done := state.count == c.hub.numProcs
	if done {
		delete(c.hub.reduce, key) // free for a future reuse of the same key
	}
	c.hub.reduceMu.Unlock()

	if done {
		close(state.done)
		return state, nil
	}
	select {
	case <-state.done:
		return state, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("rpc: all-reduce %q canceled: %w", key, ctx.Err())
	}
}

// AllReduceOr implements Coordinator.
func (c *LocalCoordinator) AllReduceOr(ctx context.Context, key string, local bool) (bool, error) {
	state, err := c.joinReduce(ctx, key, func(s *reduceState) { s.orVal = s.orVal || local })
	if err != nil {
		return false, err
	}
	return state.orVal, nil
}

// AllReduceSum implements Coordinator.
func (c *LocalCoordinator) AllReduceSum(ctx context.Context, key string, local int64) (int64, error) {
	state, err := c.joinReduce(ctx, key, func(s *reduceState) { s.sumVal += local })
	if err != nil {
		return 0, err
	}
	return state.sumVal, nil
}

// Close implements Coordinator. The in-memory hub owns no external
// resources, so this is a no-op.
func (c *LocalCoordinator) Close() error { return nil }
