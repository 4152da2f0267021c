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

// scheduleDeferred is idempotent: if a deferred op is already pending, this
// is a no-op. Otherwise it adds a reference (the deferred op is itself an
// async liveness source) and posts the dispatch loop to the runner. Must be
// called with e.mu held.
func (e *Engine) scheduleDeferred() {
	if e.deferredPending {
		return
	}
	e.deferredPending = true
	e.addRef()
	e.runner.Schedule(e.runDeferred)
}

// runDeferred is the runner's dispatch loop (spec.md §4.4). It runs on the
// runner's own goroutine, outside any LL/filter callback stack, which is
// exactly what lets it deliver try_connect/try_close steps and flush
// buffered reads without risking reentrant lock acquisition against a
// caller-owned stack frame.
func (e *Engine) runDeferred() {
	e.mu.Lock()
	for e.deferredOpen || e.deferredClose || e.deferredRead {
		switch {
		case e.deferredOpen:
			e.deferredOpen = false
			e.tryConnect()
		case e.deferredClose:
			e.deferredClose = false
			e.tryClose()
		default:
			e.deferredRead = false
			if e.st != stateOpen {
				e.inRead = false
				continue
			}
			e.mu.Unlock()
			_, werr := e.filterLLWrite(e.readSink, nil)
			e.mu.Lock()
			if werr != nil {
				e.savedReadErr = werr
			}
			e.inRead = false
		}
	}
	e.deferredPending = false
	e.setLLEnablesLocked()
	zero := e.releaseAsyncRefLocked()
	e.finishLocked(zero)
}
