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

package exchange

import (
	"context"
	"sync"
	"testing"
)

// loopbackTransport wires a small set of BufferedExchange instances
// together in-memory, simulating one grpc peer per process without a real
// network, and records how many SendBatch calls it received in total.
type loopbackTransport struct {
	mu    sync.Mutex
	peers map[int]*BufferedExchange[int, string]
	calls int
}

func (tr *loopbackTransport) SendBatch(ctx context.Context, destProc int, entries []Entry[int, string]) error {
	tr.mu.Lock()
	tr.calls++
	peer := tr.peers[destProc]
	tr.mu.Unlock()
	peer.Deliver(entries)
	return nil
}

func newCluster(n int) (*loopbackTransport, []*BufferedExchange[int, string]) {
	tr := &loopbackTransport{peers: make(map[int]*BufferedExchange[int, string])}
	exchanges := make([]*BufferedExchange[int, string], n)
	for i := 0; i < n; i++ {
		ex := New[int, string](i, n, 0, tr, nil, false)
		exchanges[i] = ex
		tr.peers[i] = ex
	}
	return tr, exchanges
}

func TestSendThenFlushDelivers(t *testing.T) {
	_, exs := newCluster(3)
	ctx := context.Background()

	if err := exs[0].Send(ctx, 2, 7, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out []Entry[int, string]
	if exs[2].Drain(&out) {
		t.Fatalf("expected nothing before flush")
	}

	if err := exs[0].Flush(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !exs[2].Drain(&out) {
		t.Fatalf("expected delivered entries after flush")
	}
	if len(out) != 1 || out[0].Key != 7 || out[0].Value != "hello" {
		t.Fatalf("got %+v, expected one entry {7 hello}", out)
	}
}

func TestSendToSelfLoopsBackWithoutTransport(t *testing.T) {
	tr, exs := newCluster(2)
	ctx := context.Background()

	if err := exs[0].Send(ctx, 0, 1, "loop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out []Entry[int, string]
	if !exs[0].Drain(&out) {
		t.Fatalf("expected self-send to land in inbox immediately")
	}
	if tr.calls != 0 {
		t.Fatalf("self-send should never touch the transport, got %d calls", tr.calls)
	}
}

func TestBufferLimitTriggersAutoFlush(t *testing.T) {
	tr := &loopbackTransport{peers: make(map[int]*BufferedExchange[int, string])}
	a := New[int, string](0, 2, 3, tr, nil, false)
	b := New[int, string](1, 2, 3, tr, nil, false)
	tr.peers[0] = a
	tr.peers[1] = b

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := a.Send(ctx, 1, i, "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var out []Entry[int, string]
	if !b.Drain(&out) {
		t.Fatalf("expected the third send to trigger an automatic flush")
	}
	if len(out) != 3 {
		t.Fatalf("got %d entries, expected 3", len(out))
	}
}

func TestPendingReflectsUnflushedBuffers(t *testing.T) {
	_, exs := newCluster(2)
	ctx := context.Background()

	if exs[0].Pending() {
		t.Fatalf("expected no pending buffers before any send")
	}
	if err := exs[0].Send(ctx, 1, 5, "y"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exs[0].Pending() {
		t.Fatalf("expected a pending buffer after send")
	}
	if err := exs[0].Flush(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exs[0].Pending() {
		t.Fatalf("expected no pending buffers after flush")
	}
}
