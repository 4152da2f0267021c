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

// Close begins the close sequence. done is invoked exactly once: with the
// close outcome normally, or with ErrClosed if Free preempts it first.
// Returns ErrBusy if there is no closeable state to transition from.
func (e *Engine) Close(done CloseCompletion) error {
	e.mu.Lock()
	switch e.st {
	case stateClosed:
		e.mu.Unlock()
		return ErrBusy
	case stateInLLOpen:
		e.closeDone = done
		e.openDone = nil
		e.st = stateInLLClose
		e.mu.Unlock()
		return nil
	case stateInFilterOpen, stateOpen:
		e.closeDone = done
		if e.st == stateInFilterOpen {
			e.openDone = nil
		}
		e.beginActiveClose()
		e.setLLEnablesLocked()
		e.mu.Unlock()
		return nil
	default:
		// CLOSE_WAIT_DRAIN, IN_FILTER_CLOSE, IN_LL_CLOSE: a close is already
		// in flight.
		e.mu.Unlock()
		return ErrBusy
	}
}

// Free drops the caller's handle. When the last handle drops, the engine is
// driven into the appropriate close path and the initial reference is
// released. Any open or close completion still outstanding at that point is
// preempted: it fires with ErrClosed instead of the outcome it was
// registered to see, since the caller that registered it has already let
// go of the engine.
func (e *Engine) Free() {
	e.mu.Lock()
	if e.freeref <= 0 {
		panic("pipeline: freeref underflow")
	}
	e.freeref--
	if e.freeref != 0 {
		e.mu.Unlock()
		return
	}

	preemptedClose := e.closeDone
	e.closeDone = nil
	var preemptedOpen OpenCompletion

	switch e.st {
	case stateClosed:
		e.derefAndUnlock()
	case stateInLLOpen:
		preemptedOpen = e.openDone
		e.openDone = nil
		e.st = stateInLLClose
		e.derefAndUnlock()
	case stateInFilterOpen, stateOpen:
		preemptedOpen = e.openDone
		e.openDone = nil
		e.beginActiveClose()
		e.setLLEnablesLocked()
		e.derefAndUnlock()
	default:
		e.derefAndUnlock()
	}

	if preemptedOpen != nil {
		preemptedOpen(ErrClosed)
	}
	if preemptedClose != nil {
		preemptedClose(ErrClosed)
	}
}

// beginActiveClose transitions out of OPEN/IN_FILTER_OPEN into the close
// path. Must be called with e.mu held; returns with e.mu held.
func (e *Engine) beginActiveClose() {
	switch {
	case e.llErrOccurred:
		e.issueLLClose()
	case e.filterLLWritePending():
		e.st = stateCloseWaitDrain
	default:
		e.st = stateInFilterClose
		e.deferredClose = true
		e.scheduleDeferred()
	}
}

// tryClose drives one step of the filter disconnect handshake. Must be
// called with e.mu held; returns with e.mu held.
func (e *Engine) tryClose() {
	e.ll.SetReadCallbackEnable(false)
	e.ll.SetWriteCallbackEnable(false)

	var err error
	e.mu.Unlock()
	if e.filter != nil {
		err = e.filter.TryDisconnect(0)
	}
	e.mu.Lock()

	if e.st != stateInFilterClose {
		return
	}

	switch {
	case errors.Is(err, ErrInProgress):
		// A future LL callback re-drives try_close.
	default:
		if again, ok := AsAgain(err); ok {
			e.startTimer(time.Duration(again.Timeout) * time.Millisecond)
			return
		}
		if err != nil {
			e.savedXmitErr = err
		}
		e.issueLLClose()
	}
}

// issueLLClose cleans up the filter and issues the LL close. Must be called
// with e.mu held; returns with e.mu held.
func (e *Engine) issueLLClose() {
	e.st = stateInLLClose
	e.mu.Unlock()
	if e.filter != nil {
		e.filter.Cleanup()
	}
	err := e.ll.Close(e.llCloseDone)
	e.mu.Lock()

	switch {
	case err == nil:
		finalErr := e.savedXmitErr
		e.savedXmitErr = nil
		e.finishClose(finalErr)
	case errors.Is(err, ErrInProgress):
		e.addRef()
	default:
		e.finishClose(err)
	}
}

// llCloseDone is the LL's async close completion callback.
func (e *Engine) llCloseDone(err error) {
	e.mu.Lock()
	if e.st != stateInLLClose {
		zero := e.releaseAsyncRefLocked()
		e.finishLocked(zero)
		return
	}
	zero := e.releaseAsyncRefLocked()
	finalErr := err
	if finalErr == nil {
		finalErr = e.savedXmitErr
	}
	e.savedXmitErr = nil
	e.finishClose(finalErr)
	e.finishLocked(zero)
}

// finishClose transitions to CLOSED and delivers whichever completion is
// outstanding: open_done if the close preempted an in-flight open, else
// close_done. Must be called with e.mu held; returns with e.mu held.
func (e *Engine) finishClose(err error) {
	e.st = stateClosed
	atomic.AddUint64(&e.stats.CloseCount, 1)

	openDone := e.openDone
	e.openDone = nil
	closeDone := e.closeDone
	e.closeDone = nil
	suppressed := e.freeref == 0

	e.mu.Unlock()
	if !suppressed {
		if openDone != nil {
			openDone(err)
		} else if closeDone != nil {
			closeDone(err)
		}
	}
	e.mu.Lock()
}
