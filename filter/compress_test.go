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

func TestCompressRoundTripThroughSharedWire(t *testing.T) {
	sender := NewCompress()
	receiver := NewCompress()
	sender.Setup(pipeline.FilterCallbacks{})
	receiver.Setup(pipeline.FilterCallbacks{})

	var wire bytes.Buffer
	toWire := func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}

	msg := bytes.Repeat([]byte("snappy round trip "), 100)
	if _, err := sender.ULWrite(toWire, msg); err != nil {
		t.Fatalf("ULWrite: %v", err)
	}
	if sender.LLWritePending() {
		t.Fatal("sender should have drained its whole frame into an accepting sink")
	}

	var decoded bytes.Buffer
	fromWire := func(buf []byte) (int, error) {
		decoded.Write(buf)
		return len(buf), nil
	}
	if _, err := receiver.LLWrite(fromWire, wire.Bytes()); err != nil {
		t.Fatalf("LLWrite: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), msg) {
		t.Fatal("decompressed payload does not match original")
	}
}

func TestCompressBackpressureRetainsUndeliveredFrame(t *testing.T) {
	receiver := NewCompress()
	receiver.Setup(pipeline.FilterCallbacks{})

	sender := NewCompress()
	sender.Setup(pipeline.FilterCallbacks{})
	var wire bytes.Buffer
	if _, err := sender.ULWrite(func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}, []byte("a complete frame")); err != nil {
		t.Fatalf("ULWrite: %v", err)
	}

	refused := func([]byte) (int, error) { return 0, nil }
	if _, err := receiver.LLWrite(refused, wire.Bytes()); err != nil {
		t.Fatalf("LLWrite: %v", err)
	}
	if !receiver.ULReadPending() {
		t.Fatal("a complete, undelivered frame must report ULReadPending")
	}

	var decoded bytes.Buffer
	accept := func(buf []byte) (int, error) {
		decoded.Write(buf)
		return len(buf), nil
	}
	if _, err := receiver.LLWrite(accept, nil); err != nil {
		t.Fatalf("LLWrite retry: %v", err)
	}
	if decoded.String() != "a complete frame" {
		t.Fatalf("decoded = %q, want %q", decoded.String(), "a complete frame")
	}
	if receiver.ULReadPending() {
		t.Fatal("ULReadPending should clear once the frame is delivered")
	}
}
