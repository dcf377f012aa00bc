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

package engine

import (
	"context"

	"github.com/purpleidea/gasengine/vprog"
)

// vertexContext is the per-call handle a SyncEngine builds for one vertex
// program invocation. Never retained past the call that received it
// (spec.md section 4.6).
type vertexContext[M any, G any] struct {
	ctx       context.Context
	engine    *SyncEngine[M, G]
	local     int
	iteration int
}

var _ vprog.Context[int] = (*vertexContext[int, int])(nil)

// GlobalID implements vprog.Context.
func (c *vertexContext[M, G]) GlobalID() uint64 {
	return c.engine.graph.GlobalID(c.local)
}

// VertexData implements vprog.Context.
func (c *vertexContext[M, G]) VertexData() interface{} {
	return c.engine.vdata[c.local]
}

// SetVertexData implements vprog.Context.
func (c *vertexContext[M, G]) SetVertexData(v interface{}) {
	c.engine.vdata[c.local] = v
}

// Signal implements vprog.Context by routing msg to the owner of
// globalVID: combined directly into the local message slot if this
// machine masters it, otherwise handed to the message exchange for
// delivery at the next barrier.
func (c *vertexContext[M, G]) Signal(globalVID uint64, msg M) error {
	return c.engine.signal(c.ctx, globalVID, msg)
}

// Iteration implements vprog.Context.
func (c *vertexContext[M, G]) Iteration() int {
	return c.iteration
}

// NumEdges implements vprog.Context.
func (c *vertexContext[M, G]) NumEdges(dir vprog.EdgeDirection) int {
	return c.engine.graph.NumEdgesFor(c.local, dir)
}
