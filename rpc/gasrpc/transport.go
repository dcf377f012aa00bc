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

package gasrpc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/purpleidea/gasengine/exchange"
	"github.com/purpleidea/gasengine/rpc"
	"github.com/purpleidea/gasengine/util/errwrap"
)

// Transport is the grpc-based production exchange.Transport[K, V]
// exchange.go's doc comment names: one instance exists per exchange kind
// per machine (message, activation, gather-partial, vertex-data), each
// dialing its peers lazily and caching the connection, mirroring
// BufferedExchange's own one-instance-per-concern shape.
type Transport[K any, V any] struct {
	selfProc   int
	membership rpc.Membership

	mu    sync.Mutex
	conns map[int]*grpc.ClientConn
}

// NewTransport builds a Transport that resolves peer addresses through
// membership (an *rpc.EtcdMembership or *rpc.ConsulMembership).
func NewTransport[K any, V any](selfProc int, membership rpc.Membership) *Transport[K, V] {
	return &Transport[K, V]{
		selfProc:   selfProc,
		membership: membership,
		conns:      make(map[int]*grpc.ClientConn),
	}
}

func (t *Transport[K, V]) dial(ctx context.Context, destProc int) (*grpc.ClientConn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[destProc]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	peers, err := t.membership.Peers(ctx)
	if err != nil {
		return nil, errwrap.Wrapf(err, "gasrpc: resolve peer %d", destProc)
	}
	addr, ok := peers[destProc]
	if !ok {
		return nil, fmt.Errorf("gasrpc: no registered address for proc %d", destProc)
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(gobCodec{})),
	)
	if err != nil {
		return nil, errwrap.Wrapf(err, "gasrpc: dial proc %d at %q", destProc, addr)
	}

	t.mu.Lock()
	if existing, ok := t.conns[destProc]; ok {
		t.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	t.conns[destProc] = conn
	t.mu.Unlock()
	return conn, nil
}

// SendBatch implements exchange.Transport by gob-encoding entries into a
// rawBatch and invoking the grpc Deliver method, reusing a cached
// connection per destination.
func (t *Transport[K, V]) SendBatch(ctx context.Context, destProc int, entries []exchange.Entry[K, V]) error {
	conn, err := t.dial(ctx, destProc)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return errwrap.Wrapf(err, "gasrpc: encode batch for proc %d", destProc)
	}
	req := &rawBatch{SrcProc: t.selfProc, Entries: buf.Bytes()}
	ack := new(rawAck)
	if err := conn.Invoke(ctx, "/"+serviceName+"/"+deliverName, req, ack, grpc.ForceCodec(gobCodec{})); err != nil {
		return errwrap.Wrapf(err, "gasrpc: deliver to proc %d", destProc)
	}
	return nil
}

// Close tears down every cached outbound connection.
func (t *Transport[K, V]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.conns = make(map[int]*grpc.ClientConn)
	return firstErr
}

// Server is the receive side: it decodes an inbound rawBatch back into
// []exchange.Entry[K, V] and forwards it to Deliver, the same shape
// BufferedExchange.Deliver expects from any Transport's receive path.
type Server[K any, V any] struct {
	deliver func(entries []exchange.Entry[K, V])

	listener net.Listener
	server   *grpc.Server
}

// NewServer builds a Server that calls deliver (normally
// (*exchange.BufferedExchange[K, V]).Deliver) for every inbound batch.
func NewServer[K any, V any](deliver func(entries []exchange.Entry[K, V])) *Server[K, V] {
	return &Server[K, V]{deliver: deliver}
}

// Deliver implements the deliverer interface the hand-written serviceDesc
// dispatches to.
func (s *Server[K, V]) Deliver(ctx context.Context, req *rawBatch) (*rawAck, error) {
	var entries []exchange.Entry[K, V]
	if err := gob.NewDecoder(bytes.NewReader(req.Entries)).Decode(&entries); err != nil {
		return nil, errwrap.Wrapf(err, "gasrpc: decode batch from proc %d", req.SrcProc)
	}
	s.deliver(entries)
	return new(rawAck), nil
}

// Listen starts the grpc server on addr in the background. Stop shuts it
// down. A caller typically calls Listen once per exchange kind per machine
// and registers the resulting address with an rpc.Membership so peers can
// discover it.
func (s *Server[K, V]) Listen(addr string) (string, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errwrap.Wrapf(err, "gasrpc: listen on %q", addr)
	}
	s.listener = lis
	s.server = grpc.NewServer(grpc.ForceServerCodec(gobCodec{}))
	s.server.RegisterService(&serviceDesc, s)
	go s.server.Serve(lis)
	return lis.Addr().String(), nil
}

// Stop gracefully shuts down the server.
func (s *Server[K, V]) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}
