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

import "context"

// Membership resolves which network address currently answers for each proc
// index, the discovery layer a gasrpc.Transport dials against. It is kept
// separate from Coordinator because a deployment can mix discovery
// mechanisms (etcd, consul) with the same barrier/all-reduce substrate,
// mirroring the teacher's pattern of pluggable World/Client backends behind
// one interface (etcd/client/simple.go's several constructors).
type Membership interface {
	// Register publishes this machine's own dial address under its proc
	// index, so other machines' Peers calls can find it.
	Register(ctx context.Context, selfProc int, addr string) error

	// Peers returns every currently-registered proc -> dial address
	// mapping, including this machine's own entry.
	Peers(ctx context.Context) (map[int]string, error)

	// Close releases any resources the membership backend holds.
	Close() error
}
