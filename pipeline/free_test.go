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

package pipeline_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/xtaci/pipeline"
	"github.com/xtaci/pipeline/filter"
)

// hangingCloseLL is a minimal pipeline.LL whose Close never completes: it
// reports ErrInProgress and never calls its done callback, so a close
// sequence started against it can only ever be observed through Free's
// preemption, never through the LL's own completion.
type hangingCloseLL struct {
	cb pipeline.LLCallbacks
}

func (l *hangingCloseLL) Open(done func(error)) error  { return nil }
func (l *hangingCloseLL) Close(done func(error)) error { return pipeline.ErrInProgress }
func (l *hangingCloseLL) Write(buf []byte) (int, error) {
	return len(buf), nil
}
func (l *hangingCloseLL) SetReadCallbackEnable(enable bool)  {}
func (l *hangingCloseLL) SetWriteCallbackEnable(enable bool) {}
func (l *hangingCloseLL) RAddrToStr() string                 { return "" }
func (l *hangingCloseLL) GetRAddr() net.Addr                 { return nil }
func (l *hangingCloseLL) RemoteID() string                   { return "" }
func (l *hangingCloseLL) Free()                              {}
func (l *hangingCloseLL) SetCallbacks(cb pipeline.LLCallbacks) {
	l.cb = cb
}

// TestFreePreemptsCloseWithErrClosed exercises the scenario ErrClosed's doc
// comment promises: a Close in flight whose LL never finishes closing is
// preempted by Free, and the registered completion fires with ErrClosed
// instead of hanging forever.
func TestFreePreemptsCloseWithErrClosed(t *testing.T) {
	e := pipeline.New(&hangingCloseLL{}, filter.NewIdentity(), true)

	done := make(chan error, 1)
	if err := e.Close(func(err error) { done <- err }); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e.Free()

	select {
	case err := <-done:
		if !errors.Is(err, pipeline.ErrClosed) {
			t.Fatalf("completion error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close completion never fired after Free preempted it")
	}
}

// TestFreePreemptsOpenWithErrClosed exercises the same preemption for an
// open in flight: the telnet filter's first TryConnect always asks for a
// retry (nothing ever feeds it the peer's offer in this test), so the open
// handshake started by Open is still pending when Free is called.
func TestFreePreemptsOpenWithErrClosed(t *testing.T) {
	e := pipeline.New(&hangingCloseLL{}, filter.NewTelnet(), false)

	done := make(chan error, 1)
	if err := e.Open(func(err error) { done <- err }); err != nil {
		t.Fatalf("Open: %v", err)
	}

	e.Free()

	select {
	case err := <-done:
		if !errors.Is(err, pipeline.ErrClosed) {
			t.Fatalf("completion error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open completion never fired after Free preempted it")
	}
}
