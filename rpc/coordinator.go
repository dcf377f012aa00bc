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

// Package rpc supplies the cluster-wide collaborators a SyncEngine needs to
// close a BSP superstep: a full barrier every machine must cross before the
// next phase starts, an all-reduce for closure decisions (any_messages
// pending, an error code, a termination vote), and point-to-point delivery
// for the BufferedExchange transport. spec.md section 1 explicitly puts the
// network/membership layer out of scope ("no particular RPC mechanism is
// specified"); this package is the out-of-scope collaborator implemented
// anyway so the engine package is actually testable and runnable, following
// the teacher's etcd-backed coordination in etcd/client/simple.go and
// etcd/etcd.go.
package rpc

import "context"

// Coordinator is everything the engine needs from the cluster substrate.
// EtcdCoordinator is the production implementation; LocalCoordinator is an
// in-process stand-in used by tests and by a single-machine cmd/gasrun run.
type Coordinator interface {
	// NumProcs returns the total number of machines in this run.
	NumProcs() int

	// SelfProc returns this machine's 0-based index.
	SelfProc() int

	// Barrier blocks until every machine has called Barrier for the
	// current generation, then advances the generation. It is the
	// "cluster-wide full barrier" spec.md section 4.5 closes every
	// phase with.
	Barrier(ctx context.Context) error

	// AllReduceOr combines local across every machine with a logical OR
	// and returns the result to all of them, used to decide
	// any_messages_pending at iteration closure (spec.md section 4.5).
	AllReduceOr(ctx context.Context, key string, local bool) (bool, error)

	// AllReduceSum combines local across every machine with a sum and
	// returns the result to all of them. The engine does not call it; its
	// completed-task count is per machine.
	AllReduceSum(ctx context.Context, key string, local int64) (int64, error)

	// Close releases any resources (connections, watchers) the
	// coordinator holds.
	Close() error
}
