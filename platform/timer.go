// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package platform holds the OS-function collaborators the core engine
// treats as an injected platform: a single-pending-deadline retry timer, a
// reusable deferred-op dispatch goroutine, and byte-buffer pooling. None of
// these are domain concerns of the teacher's dependency stack (see
// DESIGN.md) so they stay on the standard library, the same way
// xtaci/kcp-go's own timedsched.go and bufferpool.go do for an equivalent
// role.
package platform

import (
	"sync"
	"time"
)

// Timer is a cancelable one-shot timer with a stop-and-drain primitive:
// StopAndDrain only returns once the caller can rely on the armed
// callback never running again, which is what lets Engine free itself
// without racing a late timer fire against already-freed state
// (spec.md §4.5, §9).
type Timer struct {
	mu    sync.Mutex
	timer *time.Timer
	armed bool
	wg    sync.WaitGroup
}

// NewTimer returns an unarmed Timer.
func NewTimer() *Timer { return &Timer{} }

// Start arms the timer to invoke fn after d, replacing any previously
// pending fire. fn runs on its own goroutine, never while the caller holds
// any lock the Timer itself doesn't manage.
func (tm *Timer) Start(d time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.timer != nil && tm.timer.Stop() {
		// the previous arm will never fire now; release its wg slot.
		tm.wg.Done()
	}

	tm.armed = true
	tm.wg.Add(1)
	tm.timer = time.AfterFunc(d, func() {
		defer tm.wg.Done()
		tm.mu.Lock()
		if !tm.armed {
			tm.mu.Unlock()
			return
		}
		tm.armed = false
		tm.mu.Unlock()
		fn()
	})
}

// Stop disarms the timer without waiting for drain confirmation; useful
// when the caller only wants to cancel a pending retry, not tear down.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.timer != nil && tm.timer.Stop() {
		tm.armed = false
		tm.wg.Done()
	}
}

// StopAndDrain disarms the timer and blocks until any in-flight callback
// invocation has completed, or confirms none was pending. If the timer was
// never armed, it returns immediately.
func (tm *Timer) StopAndDrain() {
	tm.mu.Lock()
	if tm.timer == nil {
		tm.mu.Unlock()
		return
	}
	if tm.timer.Stop() {
		tm.armed = false
		tm.mu.Unlock()
		tm.wg.Done()
		return
	}
	tm.mu.Unlock()
	// the timer already fired (or is about to run its callback); wait for
	// that invocation to finish before reporting drained.
	tm.wg.Wait()
}
