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

func TestQPPRoundTrip(t *testing.T) {
	seed := []byte("a shared qpp seed long enough for the minimum")
	sender := NewQPP(61, seed)
	receiver := NewQPP(61, seed)
	sender.Setup(pipeline.FilterCallbacks{})
	receiver.Setup(pipeline.FilterCallbacks{})

	var wire bytes.Buffer
	msg := []byte("permute me")
	if _, err := sender.ULWrite(func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}, msg); err != nil {
		t.Fatalf("ULWrite: %v", err)
	}
	if bytes.Equal(wire.Bytes(), msg) {
		t.Fatal("wire bytes equal plaintext: permutation did not change anything")
	}

	var decoded bytes.Buffer
	if _, err := receiver.LLWrite(func(buf []byte) (int, error) {
		decoded.Write(buf)
		return len(buf), nil
	}, wire.Bytes()); err != nil {
		t.Fatalf("LLWrite: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), msg) {
		t.Fatalf("decoded = %q, want %q", decoded.Bytes(), msg)
	}
}

// TestQPPPRNGLockstepRequiresInOrderBytes confirms the two sides' PRNGs
// stay in lockstep across call boundaries when the bytes arrive in order:
// splitting one logical write into two independent ULWrite calls still
// round-trips through a single LLWrite, since both sides advance their PRNG
// one byte at a time.
func TestQPPPRNGLockstepRequiresInOrderBytes(t *testing.T) {
	seed := []byte("a shared qpp seed long enough for the minimum")
	sender := NewQPP(61, seed)
	receiver := NewQPP(61, seed)
	sender.Setup(pipeline.FilterCallbacks{})
	receiver.Setup(pipeline.FilterCallbacks{})

	var wire bytes.Buffer
	toWire := func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}
	if _, err := sender.ULWrite(toWire, []byte("first")); err != nil {
		t.Fatalf("ULWrite 1: %v", err)
	}
	if _, err := sender.ULWrite(toWire, []byte("second")); err != nil {
		t.Fatalf("ULWrite 2: %v", err)
	}

	var decoded bytes.Buffer
	if _, err := receiver.LLWrite(func(buf []byte) (int, error) {
		decoded.Write(buf)
		return len(buf), nil
	}, wire.Bytes()); err != nil {
		t.Fatalf("LLWrite: %v", err)
	}
	if decoded.String() != "firstsecond" {
		t.Fatalf("decoded = %q, want %q", decoded.String(), "firstsecond")
	}
}

func TestValidateQPPParams(t *testing.T) {
	if _, err := ValidateQPPParams(0, "seed"); err == nil {
		t.Fatal("expected an error for a non-positive pad count")
	}

	warnings, err := ValidateQPPParams(1, "short")
	if err != nil {
		t.Fatalf("ValidateQPPParams: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected warnings for a too-short seed and a too-small pad count")
	}
}
