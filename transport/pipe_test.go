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

package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/xtaci/pipeline"
)

// recordingCallbacks captures whatever an LL delivers, for tests that drive
// an LL directly instead of through a full pipeline.Engine.
type recordingCallbacks struct {
	read chan []byte
	errs chan error
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{
		read: make(chan []byte, 16),
		errs: make(chan error, 16),
	}
}

func (r *recordingCallbacks) asLLCallbacks() pipeline.LLCallbacks {
	return pipeline.LLCallbacks{
		ReadCallback: func(err error, buf []byte, n int) int {
			if err != nil {
				r.errs <- err
				return 0
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			r.read <- cp
			return n
		},
	}
}

func TestPipeOpenCompletesSynchronously(t *testing.T) {
	a, b := NewPipePair()
	cbA := newRecordingCallbacks()
	cbB := newRecordingCallbacks()
	a.SetCallbacks(cbA.asLLCallbacks())
	b.SetCallbacks(cbB.asLLCallbacks())

	if err := a.Open(func(error) {}); err != nil {
		t.Fatalf("Open: %v, want synchronous nil", err)
	}
}

func TestPipeReadGatedByEnable(t *testing.T) {
	a, b := NewPipePair()
	cbA := newRecordingCallbacks()
	cbB := newRecordingCallbacks()
	a.SetCallbacks(cbA.asLLCallbacks())
	b.SetCallbacks(cbB.asLLCallbacks())
	if err := a.Open(func(error) {}); err != nil {
		t.Fatalf("a.Open: %v", err)
	}
	if err := b.Open(func(error) {}); err != nil {
		t.Fatalf("b.Open: %v", err)
	}

	// b has not enabled reads yet: a's write must not be observed until it does.
	msg := []byte("gated")
	writeDone := make(chan struct{})
	go func() {
		if _, err := a.Write(msg); err != nil {
			t.Errorf("write: %v", err)
		}
		close(writeDone)
	}()

	select {
	case <-cbB.read:
		t.Fatal("b delivered a read before enabling reads")
	case <-time.After(50 * time.Millisecond):
	}

	b.SetReadCallbackEnable(true)
	<-writeDone

	select {
	case got := <-cbB.read:
		if !bytes.Equal(got, msg) {
			t.Fatalf("payload mismatch: got %q, want %q", got, msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gated read")
	}
}

func TestPipeCloseDeliversReadError(t *testing.T) {
	a, b := NewPipePair()
	cbA := newRecordingCallbacks()
	cbB := newRecordingCallbacks()
	a.SetCallbacks(cbA.asLLCallbacks())
	b.SetCallbacks(cbB.asLLCallbacks())
	if err := a.Open(func(error) {}); err != nil {
		t.Fatalf("a.Open: %v", err)
	}
	if err := b.Open(func(error) {}); err != nil {
		t.Fatalf("b.Open: %v", err)
	}
	b.SetReadCallbackEnable(true)

	if err := a.Close(func(error) {}); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-cbB.errs:
		if err == nil {
			t.Fatal("expected a non-nil read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close to surface as a read error")
	}
}

func TestPipeWriteReadyFiresOnEnableTransition(t *testing.T) {
	a, b := NewPipePair()
	var cb pipeline.LLCallbacks
	fired := make(chan struct{}, 1)
	cb.WriteReadyCallback = func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}
	a.SetCallbacks(cb)
	b.SetCallbacks(pipeline.LLCallbacks{})
	if err := a.Open(func(error) {}); err != nil {
		t.Fatalf("a.Open: %v", err)
	}
	if err := b.Open(func(error) {}); err != nil {
		t.Fatalf("b.Open: %v", err)
	}

	a.SetWriteCallbackEnable(true)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WriteReadyCallback on false->true transition")
	}

	// Enabling again without an intervening disable must not re-fire.
	a.SetWriteCallbackEnable(true)
	select {
	case <-fired:
		t.Fatal("WriteReadyCallback fired again without a disable->enable transition")
	case <-time.After(100 * time.Millisecond):
	}
}
