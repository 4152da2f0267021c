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
)

// Write hands buf to the filter's upper-layer write path, which may in turn
// write through to the LL. Only legal while OPEN.
func (e *Engine) Write(buf []byte) (int, error) {
	e.mu.Lock()
	if e.st != stateOpen {
		e.mu.Unlock()
		return 0, ErrNotOpen
	}
	if e.savedXmitErr != nil {
		err := e.savedXmitErr
		e.savedXmitErr = nil
		e.mu.Unlock()
		return 0, err
	}

	e.mu.Unlock()
	n, err := e.filterULWrite(e.llWriteSink, buf)
	e.mu.Lock()

	if n > 0 {
		atomic.AddUint64(&e.stats.BytesWritten, uint64(n))
	}
	e.setLLEnablesLocked()
	e.mu.Unlock()
	return n, err
}

// SetReadEnable toggles delivery of the user read callback. If the filter
// already has upper-layer bytes buffered and enable is true, a deferred read
// is scheduled to flush them instead of waiting for the next LL byte.
func (e *Engine) SetReadEnable(enable bool) {
	e.mu.Lock()
	e.readEnabled = enable
	if enable && !e.inRead && e.filterULReadPending() {
		e.inRead = true
		e.deferredRead = true
		e.scheduleDeferred()
	}
	e.setLLEnablesLocked()
	e.mu.Unlock()
}

// SetWriteEnable toggles delivery of the user write-ready callback.
func (e *Engine) SetWriteEnable(enable bool) {
	e.mu.Lock()
	e.xmitEnabled = enable
	e.setLLEnablesLocked()
	e.mu.Unlock()
}

// llReadCallback is the LL's read-data/read-error callback.
func (e *Engine) llReadCallback(err error, buf []byte, n int) int {
	e.mu.Lock()

	if err != nil {
		atomic.AddUint64(&e.stats.LLErrors, 1)
		e.llErrOccurred = true
		e.readEnabled = false
		switch e.st {
		case stateOpen:
			cb := e.onRead
			if cb == nil {
				// No read callback registered: a direct Engine consumer
				// that never called WithReadCallback would otherwise be
				// stuck OPEN forever with llErrOccurred latched and reads
				// disabled. Self-drive the same close path the pending
				// handshake states take just below.
				e.issueLLClose()
				e.setLLEnablesLocked()
				e.mu.Unlock()
				break
			}
			e.mu.Unlock()
			cb(err, nil, 0, 0)
			e.mu.Lock()
			e.setLLEnablesLocked()
			e.mu.Unlock()
		case stateInLLOpen, stateInFilterOpen, stateCloseWaitDrain, stateInFilterClose:
			e.issueLLClose()
			e.setLLEnablesLocked()
			e.mu.Unlock()
		default:
			e.mu.Unlock()
		}
		return 0
	}

	if e.inRead {
		e.mu.Unlock()
		return 0
	}

	if e.savedReadErr != nil {
		rerr := e.savedReadErr
		e.savedReadErr = nil
		cb := e.onRead
		e.mu.Unlock()
		if cb != nil {
			cb(rerr, nil, 0, 0)
		}
		e.mu.Lock()
		e.setLLEnablesLocked()
		e.mu.Unlock()
		return 0
	}

	e.inRead = true
	e.mu.Unlock()

	consumed, werr := e.filterLLWrite(e.readSink, buf[:n])

	e.mu.Lock()
	if werr != nil {
		e.savedReadErr = werr
		atomic.AddUint64(&e.stats.FilterErrors, 1)
	}
	if consumed > 0 {
		atomic.AddUint64(&e.stats.BytesRead, uint64(consumed))
	}
	e.inRead = false

	switch e.st {
	case stateInFilterOpen:
		e.tryConnect()
	case stateInFilterClose:
		e.tryClose()
	}
	e.setLLEnablesLocked()
	e.mu.Unlock()
	return consumed
}

// llWriteReadyCallback fires when the LL is writable again.
func (e *Engine) llWriteReadyCallback() {
	e.mu.Lock()
	e.ll.SetWriteCallbackEnable(false)

	if e.filterLLWritePending() {
		e.mu.Unlock()
		_, werr := e.filter.ULWrite(e.llWriteSink, nil)
		e.mu.Lock()
		if werr != nil {
			e.savedXmitErr = werr
		}
	}

	if e.st == stateCloseWaitDrain && !e.filterLLWritePending() {
		e.st = stateInFilterClose
	}

	switch e.st {
	case stateInFilterOpen:
		e.tryConnect()
	case stateInFilterClose:
		e.tryClose()
	}

	handshaking := e.st == stateInFilterOpen || e.st == stateInFilterClose || e.st == stateCloseWaitDrain
	if !handshaking && e.xmitEnabled {
		cb := e.onWrite
		e.mu.Unlock()
		if cb != nil {
			cb()
		}
		e.mu.Lock()
	}

	e.tmpXmitEnabled = false
	e.setLLEnablesLocked()
	e.mu.Unlock()
}

// llUrgentCallback fires on LL urgent/out-of-band data.
func (e *Engine) llUrgentCallback() {
	if e.filter != nil {
		e.filter.LLUrgent()
	}
	e.mu.Lock()
	cb := e.onUrgent
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// filterOutputReady is the FilterCallbacks.OutputReady collaborator: it
// forces the LL write-enable on outside of a user Write (handshake flight,
// keepalive).
func (e *Engine) filterOutputReady() {
	e.mu.Lock()
	e.tmpXmitEnabled = true
	e.setLLEnablesLocked()
	e.mu.Unlock()
}

// filterStartTimer is the FilterCallbacks.StartTimer collaborator: arms the
// engine's retry timer, but only while OPEN (post-handshake keepalive use).
func (e *Engine) filterStartTimer(timeoutMillis int64) {
	e.mu.Lock()
	if e.st == stateOpen {
		e.mu.Unlock()
		e.startTimer(time.Duration(timeoutMillis) * time.Millisecond)
		return
	}
	e.mu.Unlock()
}

// startTimer arms the shared retry timer. Safe to call with e.mu held.
func (e *Engine) startTimer(d time.Duration) {
	e.timer.Start(d, e.onTimer)
}

// onTimer is the retry timer's fire handler.
func (e *Engine) onTimer() {
	e.mu.Lock()
	switch e.st {
	case stateInFilterOpen:
		e.tryConnect()
		e.setLLEnablesLocked()
		e.mu.Unlock()
	case stateInFilterClose:
		e.tryClose()
		e.setLLEnablesLocked()
		e.mu.Unlock()
	case stateOpen:
		e.mu.Unlock()
		if e.filter != nil {
			e.filter.Timeout()
		}
	default:
		e.mu.Unlock()
	}
}

// llWriteSink is the WriteSink a filter uses to push encoded bytes to the LL
// from its upper-layer write path.
func (e *Engine) llWriteSink(buf []byte) (int, error) {
	return e.ll.Write(buf)
}

// readSink is the WriteSink a filter uses to deliver decoded bytes to the
// user's read callback from its LL-write path. It exerts backpressure by
// accepting zero bytes whenever the engine isn't OPEN and read-enabled.
func (e *Engine) readSink(buf []byte) (int, error) {
	e.mu.Lock()
	deliver := e.st == stateOpen && e.readEnabled
	cb := e.onRead
	e.mu.Unlock()
	if !deliver || cb == nil {
		return 0, nil
	}
	return cb(nil, buf, len(buf), 0), nil
}

// setLLEnablesLocked recomputes the LL read/write callback enables from
// current engine state (spec.md §4.2 "Enable reconciliation"). Must be
// called with e.mu held.
func (e *Engine) setLLEnablesLocked() {
	wantWrite := e.xmitEnabled || e.tmpXmitEnabled || e.filterLLWritePending()

	wantRead := false
	if !e.inRead {
		switch e.st {
		case stateOpen:
			if (e.readEnabled && !e.filterULReadPending()) || e.filterLLReadNeeded() {
				wantRead = true
			}
		case stateInFilterOpen, stateInFilterClose:
			wantRead = true
		}
	}

	e.ll.SetWriteCallbackEnable(wantWrite)
	e.ll.SetReadCallbackEnable(wantRead)
}

// filterULWrite, filterLLWrite, filterULReadPending, filterLLWritePending,
// and filterLLReadNeeded are nil-safe wrappers: a nil filter behaves like an
// identity filter (bytes pass straight through the sink, nothing is ever
// buffered or needed).
func (e *Engine) filterULWrite(sink WriteSink, buf []byte) (int, error) {
	if e.filter == nil {
		return sink(buf)
	}
	return e.filter.ULWrite(sink, buf)
}

func (e *Engine) filterLLWrite(sink WriteSink, buf []byte) (int, error) {
	if e.filter == nil {
		return sink(buf)
	}
	return e.filter.LLWrite(sink, buf)
}

func (e *Engine) filterULReadPending() bool {
	return e.filter != nil && e.filter.ULReadPending()
}

func (e *Engine) filterLLWritePending() bool {
	return e.filter != nil && e.filter.LLWritePending()
}

func (e *Engine) filterLLReadNeeded() bool {
	return e.filter != nil && e.filter.LLReadNeeded()
}
