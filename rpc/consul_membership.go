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

	consulapi "github.com/hashicorp/consul/api"

	"github.com/purpleidea/gasengine/util/errwrap"
)

// ConsulMembership implements Membership over a Consul agent's service
// catalog, an alternative to EtcdMembership behind the same interface:
// the teacher keeps its World/Client backends interchangeable the same way
// (etcd/client/simple.go's several constructors), and a vertex-program run
// that already has a Consul agent on the host shouldn't need to stand up
// etcd just for peer discovery.
type ConsulMembership struct {
	client      *consulapi.Client
	serviceName string
}

// NewConsulMembership builds a ConsulMembership from an already-configured
// consul client, registering peers under a service named "gas-<runID>" so
// concurrent runs sharing an agent don't see each other's peers.
func NewConsulMembership(client *consulapi.Client, runID string) *ConsulMembership {
	return &ConsulMembership{client: client, serviceName: "gas-" + runID}
}

const consulProcTagPrefix = "gas-proc:"

// Register implements Membership by registering a Consul agent service
// whose tag encodes the proc index and whose address is the dial address
// peers should use, since Consul's catalog is service-shaped rather than a
// flat key/value store.
func (m *ConsulMembership) Register(ctx context.Context, selfProc int, addr string) error {
	host, portStr, err := splitHostPort(addr)
	if err != nil {
		return errwrap.Wrapf(err, "rpc: consul register proc %d", selfProc)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errwrap.Wrapf(err, "rpc: consul register proc %d: non-numeric port %q", selfProc, portStr)
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%d", m.serviceName, selfProc),
		Name:    m.serviceName,
		Address: host,
		Port:    port,
		Tags:    []string{consulProcTagPrefix + strconv.Itoa(selfProc)},
	}
	if err := m.client.Agent().ServiceRegister(reg); err != nil {
		return errwrap.Wrapf(err, "rpc: consul register proc %d", selfProc)
	}
	return nil
}

// Peers implements Membership by listing every healthy instance of this
// run's service and recovering each one's proc index from its tag.
func (m *ConsulMembership) Peers(ctx context.Context) (map[int]string, error) {
	entries, _, err := m.client.Health().Service(m.serviceName, "", true, nil)
	if err != nil {
		return nil, errwrap.Wrapf(err, "rpc: consul list peers for %q", m.serviceName)
	}
	out := make(map[int]string, len(entries))
	for _, entry := range entries {
		svc := entry.Service
		proc, ok := procFromTags(svc.Tags)
		if !ok {
			continue
		}
		out[proc] = fmt.Sprintf("%s:%d", svc.Address, svc.Port)
	}
	return out, nil
}

func procFromTags(tags []string) (int, bool) {
	for _, tag := range tags {
		if !strings.HasPrefix(tag, consulProcTagPrefix) {
			continue
		}
		proc, err := strconv.Atoi(strings.TrimPrefix(tag, consulProcTagPrefix))
		if err != nil {
			return 0, false
		}
		return proc, true
	}
	return 0, false
}

func splitHostPort(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("rpc: address %q has no port", addr)
	}
	return addr[:i], addr[i+1:], nil
}

// Close implements Membership. It does not close the underlying client: a
// consulapi.Client owns no background connection to tear down.
func (m *ConsulMembership) Close() error { return nil }
