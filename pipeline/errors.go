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

import "github.com/pkg/errors"

// Symbolic error codes, stable across the engine's lifetime. Callers may
// compare with errors.Is against these sentinels.
var (
	// ErrNotOpen is returned by Write when the engine is not in the OPEN state.
	ErrNotOpen = errors.New("pipeline: not open")
	// ErrBusy is returned by Open when not CLOSED, or by Close when there is
	// no closeable state to transition from.
	ErrBusy = errors.New("pipeline: busy")
	// ErrInProgress indicates an async continuation will follow; never
	// returned to the user directly, but used internally by LL/filter
	// operations to report a pending async result.
	ErrInProgress = errors.New("pipeline: in progress")
	// ErrCommError indicates a fatal, latched lower-layer error.
	ErrCommError = errors.New("pipeline: communication error")
	// ErrNoMemory indicates allocation failed during construction.
	ErrNoMemory = errors.New("pipeline: allocation failed")
	// ErrClosed is delivered to completions preempted by Free.
	ErrClosed = errors.New("pipeline: closed")
)

// Again is returned by a filter's TryConnect/TryDisconnect to request a
// retry after the given timeout has elapsed.
type Again struct {
	Timeout int64 // milliseconds
}

func (a *Again) Error() string { return "pipeline: filter requests retry" }

// AsAgain reports whether err is an *Again and returns it.
func AsAgain(err error) (*Again, bool) {
	a, ok := err.(*Again)
	return a, ok
}
