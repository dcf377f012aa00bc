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
)

// StaticMembership is an in-process Membership backed by a shared map,
// standing in for EtcdMembership/ConsulMembership in tests and single-host
// demos the way LocalCoordinator stands in for EtcdCoordinator.
type StaticMembership struct {
	mu    sync.Mutex
	peers map[int]string
}

// NewStaticMembership returns an empty, ready-to-use StaticMembership. A set
// of machines sharing one *StaticMembership value (not a copy) see each
// other's Register calls.
func NewStaticMembership() *StaticMembership {
	return &StaticMembership{peers: make(map[int]string)}
}

// Register implements Membership.
func (m *StaticMembership) Register(ctx context.Context, selfProc int, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[selfProc] = addr
	return nil
}

// Peers implements Membership.
func (m *StaticMembership) Peers(ctx context.Context) (map[int]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]string, len(m.peers))
	for k, v := range m.peers {
		out[k] = v
	}
	return out, nil
}

// Close implements Membership.
func (m *StaticMembership) Close() error { return nil }
