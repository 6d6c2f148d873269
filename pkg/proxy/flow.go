// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package proxy

import (
	"sync"
)

// flowState is the read-gate state of one relay direction.
type flowState int

const (
	flowing flowState = iota
	paused
)

// flow gates a reader goroutine. It is a strict two-state machine: pausing an
// already paused flow or resuming a flowing one is a programming fault and
// panics. At most one outstanding pause exists per direction.
type flow struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  flowState
	closed bool
}

func newFlow() *flow {
	f := &flow{state: flowing}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Pause stops the reader after its current frame.
func (f *flow) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == paused {
		panic("flow: pause while already paused")
	}
	f.state = paused
}

// Resume lets a paused reader continue.
func (f *flow) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == flowing {
		panic("flow: resume while already flowing")
	}
	f.state = flowing
	f.cond.Broadcast()
}

// Wait blocks while the flow is paused. It returns false once the flow is
// closed and the reader should exit.
func (f *flow) Wait() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.state == paused && !f.closed {
		f.cond.Wait()
	}
	return !f.closed
}

// Close releases any waiting reader permanently.
func (f *flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Paused reports the current state, for tests and logging.
func (f *flow) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == paused
}
