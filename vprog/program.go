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

// Package vprog defines the capability set a user vertex program must
// implement, and the per-thread Context the engine hands it during
// gather/apply/scatter. This is the "opaque polymorphic object" described in
// spec.md section 1: the engine never knows what M (message) or G (gather
// partial) or V (vertex data) actually are, only that M and G each come with
// an associative, commutative combiner.
package vprog

import "fmt"

// EdgeDirection selects which incident edges a gather or scatter step visits.
type EdgeDirection int

const (
	// NoEdges skips gather or scatter entirely for this vertex.
	NoEdges EdgeDirection = iota
	// InEdges visits only edges directed into the vertex.
	InEdges
	// OutEdges visits only edges directed out of the vertex.
	OutEdges
	// AllEdges visits every incident edge.
	AllEdges
)

// String renders the direction for logging.
func (d EdgeDirection) String() string {
	switch d {
	case NoEdges:
		return "NONE"
	case InEdges:
		return "IN"
	case OutEdges:
		return "OUT"
	case AllEdges:
		return "ALL"
	default:
		return fmt.Sprintf("EdgeDirection(%d)", int(d))
	}
}

// Edge is one endpoint of a vertex's adjacency as presented to gather and
// scatter. Source/Target are global vertex ids; Data is opaque edge data
// supplied by the graph partition collaborator (out of scope per spec.md
// section 1 — implemented minimally by the partition package for tests).
type Edge struct {
	Source uint64
	Target uint64
	Data   interface{}
}

// Context is the per-thread handle the engine exposes to a vertex program
// during gather, apply, and scatter. Implementations must not be retained
// across a phase barrier (spec.md section 4.6): the engine constructs a
// fresh Context for each call.
type Context[M any] interface {
	// GlobalID returns the current vertex's global id, the way
	// PowerGraph's vertex context exposes vertex.id(): useful for a
	// program whose Init needs to seed vertex data from its own identity
	// (eg connected-components label propagation starting every vertex
	// at its own id).
	GlobalID() uint64

	// VertexData returns the current vertex's authoritative or
	// replicated value.
	VertexData() interface{}

	// SetVertexData replaces the current vertex's value. Called on the
	// master from Init, RecvMessage or Apply.
	SetVertexData(v interface{})

	// Signal routes msg to the owner of globalVID, combining it into
	// that vertex's message_slot locally or over the message exchange
	// remotely, per spec.md section 4.5 P4.
	Signal(globalVID uint64, msg M) error

	// Iteration returns the current iteration counter, read-only.
	Iteration() int

	// NumEdges returns how many edges in the given direction are incident
	// on the current vertex, the way PowerGraph's vertex context exposes
	// num_in_edges/num_out_edges, so a program can do things like divide
	// a rank by out-degree in Scatter without re-deriving it from Init
	// (which runs before any edge is necessarily known).
	NumEdges(dir EdgeDirection) int
}

// MessageCombiner folds two concurrently-produced messages for the same
// vertex into one. Must be associative and commutative.
type MessageCombiner[M any] func(a, b M) M

// GatherCombiner folds two concurrently-produced partial gather results for
// the same vertex into one. Must be associative and commutative.
type GatherCombiner[G any] func(a, b G) G

// Program is the capability set a user vertex program implements. M is the
// message type exchanged between vertices; G is the gather-partial type
// accumulated over incident edges.
type Program[M any, G any] interface {
	// Init runs once, striped over local masters, before iteration 0's
	// P1. It may set initial vertex data via ctx.SetVertexData.
	Init(ctx Context[M]) error

	// RecvMessage is called during P1 for a master with a non-empty
	// message_slot, once per iteration, with the already-combined
	// message.
	RecvMessage(ctx Context[M], msg M) error

	// GatherEdges selects which edges P2 visits for this vertex.
	GatherEdges() EdgeDirection

	// Gather computes this vertex's partial contribution for one edge.
	// The engine combines the results across all selected edges (and,
	// for mirrors, across machines) with the program's GatherCombiner
	// before Apply sees the total.
	Gather(ctx Context[M], edge Edge) (G, error)

	// Apply consumes the combined gather result (zero value if
	// GatherEdges() == NoEdges) and may mutate the vertex's data via
	// ctx.SetVertexData. No other thread may touch this vertex's data
	// while Apply runs.
	Apply(ctx Context[M], gathered G) error

	// ScatterEdges selects which edges P4 visits for this vertex.
	ScatterEdges() EdgeDirection

	// Scatter runs once per selected edge and may call ctx.Signal to
	// message a neighbor.
	Scatter(ctx Context[M], edge Edge) error
}

// ProgramState is implemented by a vertex program whose Gather or Scatter
// depends on fields of its own beyond what ctx.VertexData exposes (spec.md
// section 3's program[l], distinct from vertex_data[l]): a label-propagation
// counter, a running average, anything the program keeps on itself rather
// than publishing via SetVertexData. The engine calls MarshalProgramState on
// every active master once per iteration and ships the result to that
// vertex's mirrors over the program exchange, then calls
// UnmarshalProgramState on each mirror's copy before that mirror's next
// Gather or Scatter runs, so a mirror never computes against stale program
// state (spec.md section 4.5 P1 step 4, section 6's program exchange). A
// program that keeps no state beyond vertex data need not implement this;
// its mirrors simply never receive a program broadcast.
type ProgramState interface {
	// MarshalProgramState snapshots the program's own fields into an
	// opaque byte payload, encoded however the program likes (gob, by
	// convention with the rest of the engine's wire payloads).
	MarshalProgramState() ([]byte, error)

	// UnmarshalProgramState overwrites the program's own fields from a
	// payload previously produced by MarshalProgramState.
	UnmarshalProgramState([]byte) error
}

// Combiners bundles the two associative-commutative folds a Program
// supplies, resolved once at engine construction rather than looked up on
// every call (spec.md section 9's "resolved at engine-type instantiation,
// not at every call").
type Combiners[M any, G any] struct {
	Message MessageCombiner[M]
	Gather  GatherCombiner[G]
}
