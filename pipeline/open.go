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

package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Open begins the open handshake. Only legal from CLOSED. done is invoked
// exactly once, never from inside this call: with the open outcome
// normally, or with ErrClosed if Free preempts it first. If the LL open
// fails immediately, Open returns that error and done is never invoked.
func (e *Engine) Open(done OpenCompletion) error {
	e.mu.Lock()
	if e.st != stateClosed {
		e.mu.Unlock()
		return ErrBusy
	}

	e.openDone = done
	e.closeDone = nil
	e.readEnabled = false
	e.xmitEnabled = false
	e.tmpXmitEnabled = false
	e.inRead = false
	e.llErrOccurred = false
	e.savedXmitErr = nil
	e.savedReadErr = nil
	e.mu.Unlock()

	err := e.ll.Open(e.llOpenDone)

	e.mu.Lock()
	switch {
	case err == nil:
		// Synchronous success: try_connect itself could complete
		// synchronously and call open_done before Open ever returns, so it
		// is kicked off from the deferred runner instead of run inline.
		e.st = stateInFilterOpen
		e.deferredOpen = true
		e.scheduleDeferred()
		e.setLLEnablesLocked()
		e.mu.Unlock()
		return nil
	case errors.Is(err, ErrInProgress):
		e.st = stateInLLOpen
		e.addRef()
		e.setLLEnablesLocked()
		e.mu.Unlock()
		return nil
	default:
		e.st = stateClosed
		e.openDone = nil
		e.mu.Unlock()
		if e.filter != nil {
			e.filter.Cleanup()
		}
		return err
	}
}

// llOpenDone is the LL's async open completion callback.
func (e *Engine) llOpenDone(err error) {
	e.mu.Lock()
	if e.st != stateInLLOpen {
		// Close/Free raced the pending open and already moved the state
		// machine into a close path; this is just the outstanding LL-open
		// reference draining. If the LL actually did open, it must still be
		// closed — the open was abandoned, not completed.
		zero := e.releaseAsyncRefLocked()
		if err == nil {
			e.issueLLClose()
		} else {
			e.finishClose(err)
		}
		e.finishLocked(zero)
		return
	}

	if err != nil {
		atomic.AddUint64(&e.stats.LLErrors, 1)
		zero := e.releaseAsyncRefLocked()
		e.finishClose(err)
		e.finishLocked(zero)
		return
	}

	e.st = stateInFilterOpen
	zero := e.releaseAsyncRefLocked()
	e.tryConnect()
	e.finishLocked(zero)
}

// tryConnect drives one step of the filter handshake. Must be called with
// e.mu held; returns with e.mu held.
func (e *Engine) tryConnect() {
	e.ll.SetReadCallbackEnable(false)
	e.ll.SetWriteCallbackEnable(false)

	var err error
	e.mu.Unlock()
	if e.filter != nil {
		err = e.filter.TryConnect(0)
	}
	e.mu.Lock()

	if e.st != stateInFilterOpen {
		// Superseded by a close/free while unlocked; tie-break rule: no-op.
		return
	}

	switch {
	case err == nil:
		var cerr error
		if e.filter != nil {
			e.mu.Unlock()
			cerr = e.filter.CheckOpenDone()
			e.mu.Lock()
		}
		if e.st != stateInFilterOpen {
			return
		}
		if cerr != nil {
			e.savedXmitErr = cerr
			e.issueLLClose()
		} else {
			e.st = stateOpen
			atomic.AddUint64(&e.stats.OpenCount, 1)
			e.finishOpen(nil)
		}
	case errors.Is(err, ErrInProgress):
		// A future LL callback re-drives try_connect.
	default:
		if again, ok := AsAgain(err); ok {
			e.startTimer(time.Duration(again.Timeout) * time.Millisecond)
		} else {
			e.savedXmitErr = err
			e.issueLLClose()
		}
	}
}

// finishOpen delivers the success open completion. Must be called with
// e.mu held (state already OPEN); returns with e.mu held.
func (e *Engine) finishOpen(err error) {
	done := e.openDone
	e.openDone = nil
	suppressed := e.freeref == 0
	e.mu.Unlock()
	if !suppressed && done != nil {
		done(err)
	}
	e.mu.Lock()
}
