// Mgmt
// Copyright (C) 2013-2016+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package converger reports whether a machine has gone locally quiescent. It
// is a fan-in of several independently-reporting concerns (the engine
// registers two: active vertices and pending signals) into a single
// quiesced/not-quiesced state change, the same shape the engine's actual
// termination check performs cluster-wide with rpc.Coordinator.AllReduceOr,
// but scoped to one machine and used for observability only (the engine
// logs each state change), never for correctness: a machine
// can appear locally quiescent for several iterations while a remote signal
// is still in flight toward one of its mirrors.
package converger

import (
	"fmt"
	"sync"
	"time"

	"github.com/purpleidea/gasengine/util"
)

// Watcher is the general interface for implementing a quiescence watcher.
// One SyncEngine builds exactly one Watcher and registers one Tap per
// concern it wants folded into the machine-wide quiescent/not-quiescent
// signal: "active vertices" and "pending signals", per engine.go.
type Watcher interface {
	Register() Tap
	IsQuiesced(Tap) bool          // is the tap's concern quiesced?
	SetQuiesced(Tap, bool) error  // set the quiesced state of the tap
	Unregister(Tap)
	Start()
	Pause()
	Loop(bool)
	QuiescentTimer(Tap) <-chan time.Time
	Status() map[uint64]bool
	Timeout() int                // returns the timeout this was created with
	SetStateFn(func(bool) error) // sets the stateFn
}

// Tap is the interface a reporting concern uses to notify its Watcher with.
// You'll need part of the Watcher interface to Register initially too.
type Tap interface {
	ID() uint64   // get id
	Name() string // get a friendly name
	SetName(string)
	IsValid() bool // has id been initialized?
	InvalidateID() // set id to nil
	IsQuiesced() bool
	SetQuiesced(bool) error
	Unregister()
	QuiescentTimer() <-chan time.Time
	StartTimer() (func() error, error) // cancellable is the same as StopTimer()
	ResetTimer() error                 // resets counter to zero
	StopTimer() error
}

// watcher is an implementation of the Watcher interface.
type watcher struct {
	timeout  int              // must be zero (instant) or greater seconds to run
	stateFn  func(bool) error // run on quiesced state changes with state bool
	quiesced bool             // did we quiesce (state changes of this run Fn)
	channel  chan struct{}    // signal here to run an isQuiesced check
	control  chan bool        // control channel for start/pause
	mutex    sync.RWMutex     // used for controlling access to status and lastid
	lastid   uint64
	status   map[uint64]bool
}

// tap is an implementation of the Tap interface.
type tap struct {
	watcher Watcher
	id      uint64
	name    string // user defined, friendly name: eg "active-vertices"
	mutex   sync.Mutex
	timer   chan struct{}
	running bool // is the above timer running?
}

// NewConverger builds a new Watcher that reports local quiescence once every
// registered Tap has reported quiesced=true. A timeout of zero makes
// QuiescentTimer fire instantly once quiesced; a negative timeout is used
// internally to block forever. SyncEngine uses -1: the engine's own
// iteration loop drives SetQuiesced directly, it never waits on a timer.
func NewConverger(timeout int, stateFn func(bool) error) *watcher {
	return &watcher{
		timeout: timeout,
		stateFn: stateFn,
		channel: make(chan struct{}),
		control: make(chan bool),
		lastid:  0,
		status:  make(map[uint64]bool),
	}
}

// Register assigns a Tap to the caller, eg one per engine concern.
func (obj *watcher) Register() Tap {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.lastid++
	obj.status[obj.lastid] = false // initialize as not quiesced
	return &tap{
		watcher: obj,
		id:      obj.lastid,
		name:    fmt.Sprintf("%d", obj.lastid), // some default
		timer:   nil,
		running: false,
	}
}

// IsQuiesced gets the quiesced status of a tap.
func (obj *watcher) IsQuiesced(t Tap) bool {
	if !t.IsValid() {
		panic(fmt.Sprintf("id of Tap(%s) is nil!", t.Name()))
	}
	obj.mutex.RLock()
	isQuiesced, found := obj.status[t.ID()] // lookup
	obj.mutex.RUnlock()
	if !found {
		panic("id of Tap is unregistered!")
	}
	return isQuiesced
}

// SetQuiesced updates the watcher with the quiesced state of the tap.
func (obj *watcher) SetQuiesced(t Tap, isQuiesced bool) error {
	if !t.IsValid() {
		return fmt.Errorf("id of Tap(%s) is nil!", t.Name())
	}
	obj.mutex.Lock()
	if _, found := obj.status[t.ID()]; !found {
		panic("id of Tap is unregistered!")
	}
	obj.status[t.ID()] = isQuiesced   // set
	obj.mutex.Unlock()                // unlock *before* poke or deadlock!
	if isQuiesced != obj.quiesced { // only poke if it would be helpful
		// run in a go routine so that we never block... just queue up!
		// this allows us to send events, even if we haven't started...
		go func() { obj.channel <- struct{}{} }()
	}
	return nil
}

// isQuiesced returns true if *every* registered tap has quiesced.
func (obj *watcher) isQuiesced() bool {
	obj.mutex.RLock() // take a read lock
	defer obj.mutex.RUnlock()
	for _, v := range obj.status {
		if !v { // everyone must be quiesced for this to be true
			return false
		}
	}
	return true
}

// Unregister dissociates the Tap from the quiescence checking.
func (obj *watcher) Unregister(t Tap) {
	if !t.IsValid() {
		panic(fmt.Sprintf("id of Tap(%s) is nil!", t.Name()))
	}
	obj.mutex.Lock()
	t.StopTimer() // ignore any errors
	delete(obj.status, t.ID())
	obj.mutex.Unlock()
	t.InvalidateID()
}

// Start causes a Watcher to start or resume running.
func (obj *watcher) Start() {
	obj.control <- true
}

// Pause causes a Watcher to stop running temporarily.
func (obj *watcher) Pause() { // FIXME: add a sync ACK on pause before return
	obj.control <- false
}

// Loop is the main loop for a Watcher; it usually runs in a goroutine
// alongside the engine's own Run loop, driven by the SetQuiesced calls the
// engine makes at the end of every iteration.
// NOTE: when we have very short timeouts, if we start before every tap has
// registered, it might appear as if we quiesced before we did!
func (obj *watcher) Loop(startPaused bool) {
	if obj.control == nil {
		panic("Watcher not initialized correctly")
	}
	if startPaused { // start paused without racing
		select {
		case e := <-obj.control:
			if !e {
				panic("Watcher expected true!")
			}
		}
	}
	for {
		select {
		case e := <-obj.control: // expecting "false" which means pause!
			if e {
				panic("Watcher expected false!")
			}
			// now i'm paused...
			select {
			case e := <-obj.control:
				if !e {
					panic("Watcher expected true!")
				}
				// restart
				// kick once to refresh the check...
				go func() { obj.channel <- struct{}{} }()
				continue
			}

		case <-obj.channel:
			if !obj.isQuiesced() {
				if obj.quiesced { // we're doing a state change
					if obj.stateFn != nil {
						// call an arbitrary function
						if err := obj.stateFn(false); err != nil {
							// FIXME: what to do on error ?
						}
					}
				}
				obj.quiesced = false
				continue
			}

			// we have quiesced!
			if obj.timeout >= 0 { // only run if timeout is valid
				if !obj.quiesced { // we're doing a state change
					if obj.stateFn != nil {
						// call an arbitrary function
						if err := obj.stateFn(true); err != nil {
							// FIXME: what to do on error ?
						}
					}
				}
			}
			obj.quiesced = true
			// loop and wait again...
		}
	}
}

// QuiescentTimer adds a timeout to a select call and blocks until then.
func (obj *watcher) QuiescentTimer(t Tap) <-chan time.Time {
	// be clever: if i'm already quiesced, this timeout should block which
	// avoids unnecessary new signals being sent! this avoids fast loops if
	// we have a low timeout, or in particular a timeout == 0
	if t.IsQuiesced() {
		// blocks the case statement in select forever!
		return util.TimeAfterOrBlock(-1)
	}
	return util.TimeAfterOrBlock(obj.timeout)
}

// Status returns a map of the quiesced status of each tap.
func (obj *watcher) Status() map[uint64]bool {
	status := make(map[uint64]bool)
	obj.mutex.RLock() // take a read lock
	defer obj.mutex.RUnlock()
	for k, v := range obj.status { // make a copy to avoid the mutex
		status[k] = v
	}
	return status
}

// Timeout returns the timeout in seconds that the watcher was created with.
// This is useful to avoid passing in the timeout value separately when
// you're already passing in the Watcher.
func (obj *watcher) Timeout() int {
	return obj.timeout
}

// SetStateFn sets the state function to be run on change of quiesced state.
func (obj *watcher) SetStateFn(stateFn func(bool) error) {
	obj.stateFn = stateFn
}

// ID returns the unique id of this tap.
func (obj *tap) ID() uint64 {
	return obj.id
}

// Name returns a user defined name for the specific tap, eg
// "active-vertices" or "pending-signals".
func (obj *tap) Name() string {
	return obj.name
}

// SetName sets a user defined name for the specific tap.
func (obj *tap) SetName(name string) {
	obj.name = name
}

// IsValid tells us if the id is valid or has already been destroyed.
func (obj *tap) IsValid() bool {
	return obj.id != 0 // an id of 0 is invalid
}

// InvalidateID marks the id as no longer valid.
func (obj *tap) InvalidateID() {
	obj.id = 0 // an id of 0 is invalid
}

// IsQuiesced is a helper function to the regular IsQuiesced method.
func (obj *tap) IsQuiesced() bool {
	return obj.watcher.IsQuiesced(obj)
}

// SetQuiesced is a helper function to the regular SetQuiesced notification.
func (obj *tap) SetQuiesced(isQuiesced bool) error {
	return obj.watcher.SetQuiesced(obj, isQuiesced)
}

// Unregister is a helper function to unregister myself.
func (obj *tap) Unregister() {
	obj.watcher.Unregister(obj)
}

// QuiescentTimer is a helper around the regular QuiescentTimer method.
func (obj *tap) QuiescentTimer() <-chan time.Time {
	return obj.watcher.QuiescentTimer(obj)
}

// StartTimer runs an invisible timer that automatically quiesces on timeout.
func (obj *tap) StartTimer() (func() error, error) {
	obj.mutex.Lock()
	if !obj.running {
		obj.timer = make(chan struct{})
		obj.running = true
	} else {
		obj.mutex.Unlock()
		return obj.StopTimer, fmt.Errorf("timer already started!")
	}
	obj.mutex.Unlock()
	go func() {
		for {
			select {
			case _, ok := <-obj.timer: // reset signal channel
				if !ok { // channel is closed
					return // false to exit
				}
				obj.SetQuiesced(false)

			case <-obj.QuiescentTimer():
				obj.SetQuiesced(true) // quiesced!
				select {
				case _, ok := <-obj.timer: // reset signal channel
					if !ok { // channel is closed
						return // false to exit
					}
				}
			}
		}
	}()
	return obj.StopTimer, nil
}

// ResetTimer resets the counter to zero if using a StartTimer internally.
func (obj *tap) ResetTimer() error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	if obj.running {
		obj.timer <- struct{}{} // send the reset message
		return nil
	}
	return fmt.Errorf("timer hasn't been started!")
}

// StopTimer stops the running timer permanently until a StartTimer is run.
func (obj *tap) StopTimer() error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	if !obj.running {
		return fmt.Errorf("timer isn't running!")
	}
	close(obj.timer)
	obj.running = false
	return nil
}
