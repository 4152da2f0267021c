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
	"net"
	"sync"
	"sync/atomic"

	"github.com/xtaci/pipeline/platform"
)

// Engine is the base stream engine: it mediates between one LL, one
// optional Filter, and the user's callbacks. See the package doc comment
// for the full contract.
type Engine struct {
	mu sync.Mutex

	ll     LL
	filter Filter

	timer  *platform.Timer
	runner *platform.Runner

	refcount int // async liveness: deferred ops, async LL open/close
	freeref  int // user handles

	st state

	openDone  OpenCompletion
	closeDone CloseCompletion
	onRead    ReadCallback
	onWrite   WriteCallback
	onUrgent  UrgentCallback

	readEnabled     bool
	xmitEnabled     bool
	tmpXmitEnabled  bool
	inRead          bool
	llErrOccurred   bool
	deferredPending bool
	deferredRead    bool
	deferredOpen    bool
	deferredClose   bool

	savedXmitErr error
	savedReadErr error

	stats Stats

	// freed is set once teardown has fully completed, guarding against a
	// second drain-then-free sequence if refcount oscillates back to zero
	// more than once during shutdown.
	freed bool
}

// Stats are atomically observable counters, outside the lock-guarded
// control-plane invariants; see SPEC_FULL.md §3A.
type Stats struct {
	BytesRead    uint64
	BytesWritten uint64
	OpenCount    uint64
	CloseCount   uint64
	LLErrors     uint64
	FilterErrors uint64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithReadCallback installs the user's read callback.
func WithReadCallback(cb ReadCallback) Option {
	return func(e *Engine) { e.onRead = cb }
}

// WithWriteCallback installs the user's write-ready callback.
func WithWriteCallback(cb WriteCallback) Option {
	return func(e *Engine) { e.onWrite = cb }
}

// WithUrgentCallback installs the user's urgent-data callback.
func WithUrgentCallback(cb UrgentCallback) Option {
	return func(e *Engine) { e.onUrgent = cb }
}

// New constructs an Engine over ll and an optional filter (nil means no
// filter: the LL's bytes are the user's bytes, unchanged). The engine owns
// ll and filter for their lifetime. server selects the initial state:
// false gives CLOSED (client: the user calls Open), true gives
// stateInFilterOpen (server: the LL is already
// established, e.g. an accepted connection, and only the filter handshake
// remains).
func New(ll LL, filter Filter, server bool, opts ...Option) *Engine {
	e := &Engine{
		ll:      ll,
		filter:  filter,
		timer:   platform.NewTimer(),
		runner:  platform.NewRunner(),
		freeref: 1,
		refcount: 1,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ll.SetCallbacks(LLCallbacks{
		ReadCallback:       e.llReadCallback,
		WriteReadyCallback: e.llWriteReadyCallback,
		UrgentCallback:     e.llUrgentCallback,
	})
	if e.filter != nil {
		e.filter.Setup(FilterCallbacks{
			OutputReady: e.filterOutputReady,
			StartTimer:  e.filterStartTimer,
		})
	}

	if server {
		e.st = stateInFilterOpen
		e.tmpXmitEnabled = true
	} else {
		e.st = stateClosed
	}

	e.mu.Lock()
	e.setLLEnablesLocked()
	e.mu.Unlock()
	return e
}

// Stats returns a snapshot of the engine's observability counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BytesRead:    atomic.LoadUint64(&e.stats.BytesRead),
		BytesWritten: atomic.LoadUint64(&e.stats.BytesWritten),
		OpenCount:    atomic.LoadUint64(&e.stats.OpenCount),
		CloseCount:   atomic.LoadUint64(&e.stats.CloseCount),
		LLErrors:     atomic.LoadUint64(&e.stats.LLErrors),
		FilterErrors: atomic.LoadUint64(&e.stats.FilterErrors),
	}
}

// RAddrToStr, GetRAddr, RemoteID are pass-through accessors onto the LL;
// see spec.md §6.
func (e *Engine) RAddrToStr() string { return e.ll.RAddrToStr() }
func (e *Engine) GetRAddr() net.Addr { return e.ll.GetRAddr() }
func (e *Engine) RemoteID() string   { return e.ll.RemoteID() }

// Ref increments the user-handle count (freeref). Safe to call from any
// goroutine, including from within a user callback.
func (e *Engine) Ref() {
	e.mu.Lock()
	e.freeref++
	e.mu.Unlock()
}

// addRef increments the async-liveness count (refcount). Must be called
// with e.mu held.
func (e *Engine) addRef() {
	e.refcount++
}

// releaseAsyncRefLocked decrements refcount (async liveness). Must be
// called with e.mu held. Returns true iff refcount reached zero. Unlike
// derefAndUnlock, this does not unlock or free by itself — it lets a
// caller that still needs e.mu held to finish other processing (e.g.
// driving tryConnect right after releasing an LL-open reference, per
// spec.md §4.3) before committing to the drain-then-free sequence via
// finishLocked.
func (e *Engine) releaseAsyncRefLocked() bool {
	if e.refcount <= 0 {
		panic("pipeline: refcount underflow")
	}
	e.refcount--
	return e.refcount == 0
}

// finishLocked unlocks e.mu and, if zero (as returned by an earlier
// releaseAsyncRefLocked call in the same critical section), performs the
// drain-then-free sequence. Must be the last thing a caller does with e.
func (e *Engine) finishLocked(zero bool) {
	e.mu.Unlock()
	if zero {
		e.drainAndFree()
	}
}

// derefAndUnlock is the canonical release primitive (spec.md §4.5) for the
// simple case: decrement, unlock, and free now if zero. Must be called
// with e.mu held, and the caller must not touch e again afterwards.
func (e *Engine) derefAndUnlock() {
	zero := e.releaseAsyncRefLocked()
	e.finishLocked(zero)
}

// drainAndFree stops the timer (waiting for confirmation that it will not
// fire again if it was armed) and then releases all owned resources
// exactly once. Per spec.md §4.5/§9, freeing before the timer confirms
// disarmed would race a late timer callback against freed memory — in Go
// terms, against filter/LL state the timer callback closure still
// references.
func (e *Engine) drainAndFree() {
	e.timer.StopAndDrain()

	e.mu.Lock()
	if e.freed {
		e.mu.Unlock()
		return
	}
	e.freed = true
	filter := e.filter
	ll := e.ll
	e.mu.Unlock()

	if filter != nil {
		filter.Free()
	}
	ll.Free()
	e.runner.Close()
}
