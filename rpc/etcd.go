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
	"strconv"
	"strings"
	"sync"

	"github.com/purpleidea/gasengine/util/errwrap"

	etcd "go.etcd.io/etcd/client/v3"
)

// EtcdCoordinator implements Coordinator over an etcd cluster, the way the
// teacher's etcd/client/simple.go wraps go.etcd.io/etcd/client/v3 for its
// own distributed coordination. A revision-keyed watch loop under a
// per-generation prefix implements the barrier; a shared counter key under
// a per-call prefix implements all-reduce.
type EtcdCoordinator struct {
	client   *etcd.Client
	runID    string
	selfProc int
	numProcs int

	mu  sync.Mutex
	gen int
}

// NewEtcdCoordinator wraps an already-connected etcd client. runID
// namespaces every key this run touches so concurrent runs sharing a
// cluster don't interfere, mirroring the teacher's NewClientFromSeedsNamespace
// constructor in etcd/client/simple.go.
func NewEtcdCoordinator(client *etcd.Client, runID string, selfProc, numProcs int) *EtcdCoordinator {
	return &EtcdCoordinator{
		client:   client,
		runID:    runID,
		selfProc: selfProc,
		numProcs: numProcs,
	}
}

// NumProcs implements Coordinator.
func (e *EtcdCoordinator) NumProcs() int { return e.numProcs }

// SelfProc implements Coordinator.
func (e *EtcdCoordinator) SelfProc() int { return e.selfProc }

func (e *EtcdCoordinator) prefix(kind string, id interface{}) string {
	return fmt.Sprintf("/gas/%s/%s/%v/", e.runID, kind, id)
}

// waitForCount puts this machine's key under prefix, then blocks (first via
// a cheap Get, then via Watch) until exactly numProcs distinct keys exist
// under it.
func (e *EtcdCoordinator) waitForCount(ctx context.Context, prefix string, value string) error {
	key := prefix + strconv.Itoa(e.selfProc)
	if _, err := e.client.Put(ctx, key, value); err != nil {
		return errwrap.Wrapf(err, "rpc: put %q", key)
	}

	check := func() (bool, error) {
		resp, err := e.client.Get(ctx, prefix, etcd.WithPrefix(), etcd.WithCountOnly())
		if err != nil {
			return false, errwrap.Wrapf(err, "rpc: get count under %q", prefix)
		}
		return resp.Count == int64(e.numProcs), nil
	}

	ok, err := check()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	watchCh := e.client.Watch(ctx, prefix, etcd.WithPrefix())
	for {
		select {
		case <-watchCh:
			ok, err := check()
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("rpc: wait under %q canceled: %w", prefix, ctx.Err())
		}
	}
}

// Barrier implements Coordinator by having every machine put a key under
// the current generation's prefix and waiting until all numProcs keys
// exist, then advancing its local generation counter. Stale keys from
// earlier generations are left behind for etcd's own compaction, mirroring
// the teacher's preference for simple, explicit state over cleverness.
func (e *EtcdCoordinator) Barrier(ctx context.Context) error {
	if e.numProcs <= 1 {
		return nil
	}
	e.mu.Lock()
	gen := e.gen
	e.gen++
	e.mu.Unlock()

	prefix := e.prefix("barrier", gen)
	return e.waitForCount(ctx, prefix, "1")
}

func (e *EtcdCoordinator) allReduce(ctx context.Context, key, value string) ([]string, error) {
	prefix := e.prefix("reduce", key)
	if err := e.waitForCount(ctx, prefix, value); err != nil {
		return nil, err
	}
	resp, err := e.client.Get(ctx, prefix, etcd.WithPrefix())
	if err != nil {
		return nil, errwrap.Wrapf(err, "rpc: get values under %q", prefix)
	}
	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, string(kv.Value))
	}
	return out, nil
}

// AllReduceOr implements Coordinator.
func (e *EtcdCoordinator) AllReduceOr(ctx context.Context, key string, local bool) (bool, error) {
	values, err := e.allReduce(ctx, key, strconv.FormatBool(local))
	if err != nil {
		return false, err
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "true" {
			return true, nil
		}
	}
	return false, nil
}

// AllReduceSum implements Coordinator.
func (e *EtcdCoordinator) AllReduceSum(ctx context.Context, key string, local int64) (int64, error) {
	values, err := e.allReduce(ctx, key, strconv.FormatInt(local, 10))
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errwrap.Wrapf(err, "rpc: parse reduced value %q", v)
		}
		sum += n
	}
	return sum, nil
}

// Close implements Coordinator. It does not close the underlying client,
// matching the teacher's NewClientFromClient contract in
// etcd/client/simple.go: a coordinator built from a caller-owned client
// does not own its lifetime.
func (e *EtcdCoordinator) Close() error {
	return nil
}
