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

	"github.com/purpleidea/gasengine/util/errwrap"

	etcd "go.etcd.io/etcd/client/v3"
)

// EtcdMembership implements Membership by registering each machine's dial
// address under "/gas/<runID>/peers/<proc>", the same key-per-machine shape
// EtcdCoordinator uses for its barrier and all-reduce prefixes.
type EtcdMembership struct {
	client *etcd.Client
	runID  string
}

// NewEtcdMembership wraps an already-connected etcd client.
func NewEtcdMembership(client *etcd.Client, runID string) *EtcdMembership {
	return &EtcdMembership{client: client, runID: runID}
}

func (m *EtcdMembership) prefix() string {
	return fmt.Sprintf("/gas/%s/peers/", m.runID)
}

// Register implements Membership.
func (m *EtcdMembership) Register(ctx context.Context, selfProc int, addr string) error {
	key := m.prefix() + strconv.Itoa(selfProc)
	if _, err := m.client.Put(ctx, key, addr); err != nil {
		return errwrap.Wrapf(err, "rpc: register peer %d at %q", selfProc, key)
	}
	return nil
}

// Peers implements Membership.
func (m *EtcdMembership) Peers(ctx context.Context) (map[int]string, error) {
	prefix := m.prefix()
	resp, err := m.client.Get(ctx, prefix, etcd.WithPrefix())
	if err != nil {
		return nil, errwrap.Wrapf(err, "rpc: list peers under %q", prefix)
	}
	out := make(map[int]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		proc, err := strconv.Atoi(string(kv.Key[len(prefix):]))
		if err != nil {
			return nil, errwrap.Wrapf(err, "rpc: parse peer key %q", kv.Key)
		}
		out[proc] = string(kv.Value)
	}
	return out, nil
}

// Close implements Membership. It does not close the underlying client, the
// same caller-owns-the-client contract EtcdCoordinator.Close follows.
func (m *EtcdMembership) Close() error { return nil }
