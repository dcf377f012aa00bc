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

import "time"

// SyncOptions configures a SyncEngine run. Populated from CLI flags via
// go-arg in cmd/gasrun, mirroring the teacher's use of go-arg for its own
// entrypoint configuration.
type SyncOptions struct {
	// MaxIterations caps the number of BSP supersteps; 0 means
	// unlimited (run until quiescence or MaxTasks).
	MaxIterations int `arg:"--max-iterations" help:"maximum number of BSP iterations, 0 for unlimited"`

	// MaxTasks caps total completed vertex-program invocations across
	// the whole cluster; 0 means unlimited.
	MaxTasks int64 `arg:"--max-tasks" help:"maximum cluster-wide completed tasks, 0 for unlimited"`

	// UseGatherCache enables gather_cache_valid tracking: a vertex
	// whose incident edges were not touched by a signal since the last
	// gather reuses its cached partial instead of recomputing it.
	UseGatherCache bool `arg:"--use-gather-cache"`

	// NoBackgroundComms makes every exchange flush and drain happen
	// synchronously inline within the phase that produced the data,
	// instead of overlapping with computation, trading latency-hiding
	// for simpler failure semantics (from the PowerGraph original).
	NoBackgroundComms bool `arg:"--no-background-comms"`

	// BufferLimit is the per-destination entry count that triggers an
	// automatic exchange flush; 0 uses exchange.DefaultBufferLimit.
	BufferLimit int `arg:"--buffer-limit"`

	// NumWorkers is the per-machine worker pool size; 0 uses
	// runtime.NumCPU via NewSyncEngine.
	NumWorkers int `arg:"--num-workers"`

	// Timeout bounds the whole Run call; 0 means no timeout.
	Timeout time.Duration `arg:"--timeout"`

	// TermFunc, if set, is consulted at every iteration's closure
	// alongside any_messages_pending; returning true ends the run with
	// StatusTermFunction even if vertices are still active.
	TermFunc func() bool `arg:"-"`
}
