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

package vprog

import "testing"

type countingProgram struct {
	id int
}

func (p *countingProgram) Init(ctx Context[int]) error                        { return nil }
func (p *countingProgram) RecvMessage(ctx Context[int], msg int) error        { return nil }
func (p *countingProgram) GatherEdges() EdgeDirection                         { return NoEdges }
func (p *countingProgram) Gather(ctx Context[int], edge Edge) (int, error)    { return 0, nil }
func (p *countingProgram) Apply(ctx Context[int], gathered int) error         { return nil }
func (p *countingProgram) ScatterEdges() EdgeDirection                        { return NoEdges }
func (p *countingProgram) Scatter(ctx Context[int], edge Edge) error          { return nil }

func TestStoreLazyConstruction(t *testing.T) {
	built := 0
	s := NewStore[int, int](4, func() Program[int, int] {
		built++
		return &countingProgram{id: built}
	})

	if s.Get(0) != nil {
		t.Fatalf("expected nil before Ensure")
	}
	if _, err := s.Ensure(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Ensure(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built != 1 {
		t.Fatalf("factory called %d times, expected exactly once", built)
	}

	if _, err := s.Ensure(99); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestStoreResizePreservesSlots(t *testing.T) {
	s := NewStore[int, int](2, func() Program[int, int] {
		return &countingProgram{}
	})
	p, _ := s.Ensure(1)
	s.Resize(5)
	if s.Len() != 5 {
		t.Fatalf("got len %d, expected 5", s.Len())
	}
	if s.Get(1) != p {
		t.Fatalf("resize lost the existing slot 1 program")
	}
	if s.Get(4) != nil {
		t.Fatalf("expected new slot 4 to be nil until Ensure-d")
	}
}

func TestStoreSetOverridesFactory(t *testing.T) {
	s := NewStore[int, int](1, func() Program[int, int] {
		return &countingProgram{id: -1}
	})
	override := &countingProgram{id: 42}
	if err := s.Set(0, override); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Get(0) != override {
		t.Fatalf("Set did not override slot 0")
	}
}
