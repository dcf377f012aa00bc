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

import "fmt"

// Store holds one Program instance per local vertex id. A vertex program is
// logically copied onto every master (and, transiently, every mirror that
// needs to run Gather or Scatter) per spec.md section 4.1 — the store is
// where the engine keeps those per-vertex instances addressable by local id.
type Store[M any, G any] struct {
	factory func() Program[M, G]
	slots   []Program[M, G]
}

// NewStore builds a store of n slots. factory constructs a fresh Program
// value; it is called lazily, once per slot, the first time that slot is
// touched by Ensure, so that constructing a store for a large local graph
// before any vertex is actually active stays cheap.
func NewStore[M any, G any](n int, factory func() Program[M, G]) *Store[M, G] {
	return &Store[M, G]{
		factory: factory,
		slots:   make([]Program[M, G], n),
	}
}

// Len returns the number of local vertex slots.
func (s *Store[M, G]) Len() int {
	return len(s.slots)
}

// Resize grows the store to n slots, preserving existing ones, for when the
// local graph has grown as new vertices are discovered during loading.
func (s *Store[M, G]) Resize(n int) {
	if n <= len(s.slots) {
		return
	}
	grown := make([]Program[M, G], n)
	copy(grown, s.slots)
	s.slots = grown
}

// Ensure returns the Program for local vertex l, constructing it via the
// factory on first use.
func (s *Store[M, G]) Ensure(l int) (Program[M, G], error) {
	if l < 0 || l >= len(s.slots) {
		return nil, fmt.Errorf("vprog: local id %d out of range [0, %d)", l, len(s.slots))
	}
	if s.slots[l] == nil {
		s.slots[l] = s.factory()
	}
	return s.slots[l], nil
}

// Get returns the Program for local vertex l, or nil if it has not yet been
// constructed. Unlike Ensure, it never calls the factory.
func (s *Store[M, G]) Get(l int) Program[M, G] {
	if l < 0 || l >= len(s.slots) {
		return nil
	}
	return s.slots[l]
}

// Set installs an already-constructed Program at local vertex l, overriding
// whatever the factory would have produced. The engine itself never calls
// it; Ensure constructs every program it uses.
func (s *Store[M, G]) Set(l int, p Program[M, G]) error {
	if l < 0 || l >= len(s.slots) {
		return fmt.Errorf("vprog: local id %d out of range [0, %d)", l, len(s.slots))
	}
	s.slots[l] = p
	return nil
}
