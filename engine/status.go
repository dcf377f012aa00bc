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

// Package engine implements SyncEngine, the BSP driver that runs a vertex
// program to quiescence across a cluster by repeating phases P1-P4 behind
// a full barrier (spec.md sections 4.5, 6, 7).
package engine

import "fmt"

// ExecStatus reports why Run stopped.
type ExecStatus int

const (
	// StatusUnset is the zero value; Run returns it only alongside an
	// error, when it is called in the wrong lifecycle state.
	StatusUnset ExecStatus = iota
	// StatusTaskBudgetExceeded means MaxTasks or MaxIterations was reached.
	StatusTaskBudgetExceeded
	// StatusTimeout means the run's Timeout elapsed.
	StatusTimeout
	// StatusTermFunction means SyncOptions.TermFunc returned true.
	StatusTermFunction
	// StatusNoMoreTasks means the cluster reached quiescence: no
	// machine had any vertex active and no messages were pending.
	StatusNoMoreTasks
	// StatusForcedAbort means Stop was called.
	StatusForcedAbort
)

// String renders the status for logging.
func (s ExecStatus) String() string {
	switch s {
	case StatusUnset:
		return "UNSET"
	case StatusTaskBudgetExceeded:
		return "TASK_BUDGET_EXCEEDED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusTermFunction:
		return "TERM_FUNCTION"
	case StatusNoMoreTasks:
		return "NO_MORE_TASKS"
	case StatusForcedAbort:
		return "FORCED_ABORT"
	default:
		return fmt.Sprintf("ExecStatus(%d)", int(s))
	}
}

// State is the engine's own lifecycle, separate from ExecStatus (which only
// describes how a Run call ended).
type State int

const (
	// StateCreated is the zero value, before Init has run.
	StateCreated State = iota
	// StateInitialized means Init has run; Run may be called.
	StateInitialized
	// StateRunning means a Run call is in progress.
	StateRunning
	// StateDone means Run has returned; the engine may not be reused.
	StateDone
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUN_ITER"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
