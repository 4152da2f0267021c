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

package filter

import (
	"bytes"
	"testing"

	"github.com/xtaci/pipeline"
)

// drainULWrite forces t's queued outgoing bytes out through a capturing
// sink, the way the engine's write-ready path would.
func drainULWrite(t *testing.T, tn *Telnet) []byte {
	t.Helper()
	var out bytes.Buffer
	if _, err := tn.ULWrite(func(buf []byte) (int, error) {
		out.Write(buf)
		return len(buf), nil
	}, nil); err != nil {
		t.Fatalf("ULWrite drain: %v", err)
	}
	return out.Bytes()
}

// TestTelnetHandshakeCompletesAfterReplies exercises scenario 7: the first
// TryConnect on each side queues its option offers and asks for a retry;
// only after each side's offer bytes have crossed to the peer and been
// parsed does a later TryConnect report success.
func TestTelnetHandshakeCompletesAfterReplies(t *testing.T) {
	a := NewTelnet()
	b := NewTelnet()
	a.Setup(pipeline.FilterCallbacks{})
	b.Setup(pipeline.FilterCallbacks{})

	if _, ok := pipeline.AsAgain(a.TryConnect(0)); !ok {
		t.Fatal("a's first TryConnect should request a retry")
	}
	if _, ok := pipeline.AsAgain(b.TryConnect(0)); !ok {
		t.Fatal("b's first TryConnect should request a retry")
	}

	// Neither side has seen the other's offers yet, so a second poll still
	// asks for a retry.
	if _, ok := pipeline.AsAgain(a.TryConnect(0)); !ok {
		t.Fatal("a should still be waiting on b's offers")
	}

	aOffer := drainULWrite(t, a)
	bOffer := drainULWrite(t, b)
	if len(aOffer) == 0 || len(bOffer) == 0 {
		t.Fatal("expected both sides to have queued IAC offer bytes")
	}

	discard := func(buf []byte) (int, error) { return len(buf), nil }
	if _, err := a.LLWrite(discard, bOffer); err != nil {
		t.Fatalf("a.LLWrite: %v", err)
	}
	if _, err := b.LLWrite(discard, aOffer); err != nil {
		t.Fatalf("b.LLWrite: %v", err)
	}

	if err := a.TryConnect(0); err != nil {
		t.Fatalf("a handshake should be complete, got %v", err)
	}
	if err := b.TryConnect(0); err != nil {
		t.Fatalf("b handshake should be complete, got %v", err)
	}
}

// TestTelnetPassesApplicationDataAfterNegotiation confirms bytes following
// negotiation are delivered untouched, once LLReadNeeded drops to false.
func TestTelnetPassesApplicationDataAfterNegotiation(t *testing.T) {
	a := NewTelnet()
	b := NewTelnet()
	a.Setup(pipeline.FilterCallbacks{})
	b.Setup(pipeline.FilterCallbacks{})

	a.TryConnect(0)
	b.TryConnect(0)
	aOffer := drainULWrite(t, a)
	bOffer := drainULWrite(t, b)
	discard := func(buf []byte) (int, error) { return len(buf), nil }
	a.LLWrite(discard, bOffer)
	b.LLWrite(discard, aOffer)
	if err := a.TryConnect(0); err != nil {
		t.Fatalf("a handshake: %v", err)
	}
	if err := b.TryConnect(0); err != nil {
		t.Fatalf("b handshake: %v", err)
	}
	if a.LLReadNeeded() || b.LLReadNeeded() {
		t.Fatal("LLReadNeeded should be false once negotiation completes")
	}

	msg := []byte("plain application bytes")
	var wire bytes.Buffer
	if _, err := a.ULWrite(func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}, msg); err != nil {
		t.Fatalf("a.ULWrite: %v", err)
	}

	var delivered bytes.Buffer
	if _, err := b.LLWrite(func(buf []byte) (int, error) {
		delivered.Write(buf)
		return len(buf), nil
	}, wire.Bytes()); err != nil {
		t.Fatalf("b.LLWrite: %v", err)
	}
	if !bytes.Equal(delivered.Bytes(), msg) {
		t.Fatalf("delivered = %q, want %q", delivered.Bytes(), msg)
	}
}
