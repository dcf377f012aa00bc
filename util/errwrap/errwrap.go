// Mgmt
// Copyright (C) 2013-2020+ James Shubin and the project contributors
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

// Package errwrap wraps errors the way the engine does at every phase
// boundary and barrier: one line of context (which phase, which vertex,
// which proc) stacked onto whatever the underlying collaborator returned,
// plus a way to fold several goroutines' errors from one RunPhase call into
// a single one.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf stacks a new message onto err using the given format. A nil err
// passes straight through unchanged, so a caller can always write
// errwrap.Wrapf(err, ...) without an extra nil check first.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Phase wraps err with the BSP phase or lifecycle step it failed in (eg
// "P1", "init barrier"), the single context line most of SyncEngine's error
// returns need.
func Phase(name string, err error) error {
	return Wrapf(err, name)
}

// Append folds err into reterr: whichever of the two is nil is dropped, and
// if neither is, the result is a *multierror.Error combining both. Safe to
// call as `reterr = errwrap.Append(reterr, err)` inside a loop without
// tracking whether either side has been set yet.
func Append(reterr, err error) error {
	switch {
	case reterr == nil:
		return err
	case err == nil:
		return reterr
	default:
		return multierror.Append(reterr, err)
	}
}

// String renders err's message, or the empty string for a nil err, so a log
// line can call errwrap.String(err) without a guard.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
