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

// Package pipeline implements the base stream engine: a layered pipeline
// that composes a lower-layer transport (LL) with an optional filter (TLS,
// telnet option negotiation, compression, ...) to present one uniform,
// non-blocking, callback-driven stream interface to application code.
//
// The engine owns the open handshake, the read/write data path, the
// write-draining close sequence, the retry timer, reference counting, and
// deferred callback dispatch. Concrete transports and filters are supplied
// by the transport and filter packages; the engine itself knows nothing
// about TCP, UDP, TLS, or telnet.
package pipeline

import "net"

// LL is the lower-layer transport contract. Implementations realize a
// concrete transport (TCP, UDP, a pipe, ...) underneath the engine.
type LL interface {
	// Open begins an asynchronous open. If it completes synchronously it
	// returns nil. If it is pending, it returns ErrInProgress and done is
	// invoked exactly once, later, with the outcome. On immediate failure it
	// returns the error directly.
	Open(done func(err error)) error

	// Close begins an asynchronous close. Same completion convention as
	// Open: nil for synchronous completion, ErrInProgress plus a later call
	// to done otherwise.
	Close(done func(err error)) error

	// Write writes buf to the wire, returning the number of bytes accepted.
	// A short write is not an error; the caller is responsible for
	// retrying the remainder once write-ready fires again.
	Write(buf []byte) (int, error)

	// SetReadCallbackEnable and SetWriteCallbackEnable gate delivery of the
	// LL's ReadCallback/WriteReadyCallback. They are the only legal way to
	// toggle LL-level callback delivery; the engine is the sole caller.
	SetReadCallbackEnable(enable bool)
	SetWriteCallbackEnable(enable bool)

	// RAddrToStr, GetRAddr, RemoteID are passed through to the user
	// unchanged.
	RAddrToStr() string
	GetRAddr() net.Addr
	RemoteID() string

	// Free releases the LL's own resources. Called exactly once, after the
	// LL has reached a terminal (closed) state.
	Free()

	// SetCallbacks installs the engine's callbacks. Called once, before
	// Open. The LL must treat cb as a borrowed reference valid for as long
	// as the LL itself is reachable (enforced by the engine's refcount).
	SetCallbacks(cb LLCallbacks)
}

// LLCallbacks are the callbacks an LL delivers to the engine.
type LLCallbacks struct {
	// ReadCallback delivers either an error (err != nil, buf/n ignored) or
	// up to n bytes of fresh LL data. It returns the number of bytes the
	// engine actually consumed; unconsumed bytes must be represented again
	// on a future call (LLs that read into their own buffer can simply
	// retain the remainder).
	ReadCallback func(err error, buf []byte, n int) int

	// WriteReadyCallback fires when the LL is writable again after a short
	// write.
	WriteReadyCallback func()

	// UrgentCallback fires on out-of-band/urgent data, if the LL supports
	// it. May be nil.
	UrgentCallback func()
}

// WriteSink is the destination a filter writes encoded/decoded bytes to.
// The filter calls it zero or more times per UL/LL operation; the engine
// supplies sinks that either hand bytes to the LL's Write (the LL sink,
// used from UL-write) or to the user's read callback (the read sink, used
// from LL-write). Returns the number of bytes accepted; a sink may accept
// fewer bytes than offered to exert backpressure.
type WriteSink func(buf []byte) (int, error)

// Filter is the optional encode/decode layer between the user and the LL.
type Filter interface {
	// Setup is called once, before any other Filter method, with the
	// engine-provided callbacks.
	Setup(cb FilterCallbacks)
	// Cleanup releases any handshake-only state; called once, when the
	// filter transitions out of the open/close handshake, before Free.
	Cleanup()
	// Free releases the filter's own resources. Called exactly once.
	Free()

	// ULReadPending reports whether upper-layer (decoded) bytes are
	// buffered inside the filter, waiting for the user's read callback to
	// accept them.
	ULReadPending() bool
	// LLWritePending reports whether LL-bound (encoded) bytes are buffered
	// inside the filter, waiting for the LL to become writable.
	LLWritePending() bool
	// LLReadNeeded reports whether the filter needs more LL bytes to make
	// progress (e.g. mid-handshake).
	LLReadNeeded() bool

	// CheckOpenDone runs any final verification (e.g. certificate/key
	// checks) once TryConnect has reported success. Returning a non-nil
	// error fails the open.
	CheckOpenDone() error

	// TryConnect/TryDisconnect drive the handshake. Each call may: return
	// nil (handshake step complete), return *Again{Timeout} to request a
	// retry after Timeout milliseconds, return ErrInProgress if blocked on
	// I/O that will complete via a future LL callback, or return any other
	// error to fail the handshake.
	TryConnect(timeoutMillis int64) error
	TryDisconnect(timeoutMillis int64) error

	// ULWrite is invoked on a user Write, or with an empty buf on LL
	// write-ready to drive a pending write-drain: buf is plaintext/decoded
	// upper layer bytes, sink is the LL write sink. Returns the number of
	// bytes of buf accepted.
	ULWrite(sink WriteSink, buf []byte) (int, error)
	// LLWrite is invoked on LL-read delivery (real bytes) or, with an empty
	// buf, from the deferred-read path to flush upper-layer bytes already
	// buffered in the filter: buf is raw LL bytes, sink is the user
	// read-delivery sink. Returns the number of bytes of buf consumed.
	LLWrite(sink WriteSink, buf []byte) (int, error)

	// LLUrgent is invoked on LL urgent/out-of-band data.
	LLUrgent()
	// Timeout is invoked by the engine's retry timer while OPEN, if the
	// filter wants periodic callbacks post-handshake (e.g. keepalive).
	// Optional; filters with no use for it implement it as a no-op.
	Timeout()
}

// FilterCallbacks are the callbacks the engine provides to a filter.
type FilterCallbacks struct {
	// OutputReady asks the engine to force the LL write-enable on, because
	// the filter now has LL-bound bytes ready without a user Write having
	// triggered it (e.g. handshake flight, keepalive).
	OutputReady func()
	// StartTimer arms the engine's retry timer for timeoutMillis,
	// iff the engine is currently OPEN. Used by filters that need
	// post-handshake periodic callbacks via Filter.Timeout.
	StartTimer func(timeoutMillis int64)
}

// ReadFlags are delivered alongside a user read callback for forward
// compatibility; no flags are currently defined by the core engine.
type ReadFlags uint32

// OpenCompletion and CloseCompletion are user-supplied continuations,
// recorded per-operation and invoked exactly once.
type (
	OpenCompletion  func(err error)
	CloseCompletion func(err error)
	// ReadCallback is invoked with decoded bytes or a read error. It
	// returns the number of bytes consumed. flags is currently always 0.
	ReadCallback func(err error, buf []byte, n int, flags ReadFlags) int
	// WriteCallback fires when the engine becomes writable again.
	WriteCallback func()
	// UrgentCallback fires on urgent/out-of-band data, if any.
	UrgentCallback func()
)
