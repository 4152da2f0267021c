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

// Package filter supplies concrete pipeline.Filter implementations: Identity
// (no-op), Compress (snappy), Crypto (pre-shared-key stream cipher), QPP
// (Quantum Permutation Pad), and Telnet (RFC 854 option negotiation).
package filter

import "github.com/xtaci/pipeline"

// Identity is a pipeline.Filter that performs no transformation and no
// handshake. Composing an engine with a nil filter has the same observable
// behavior; Identity exists so callers that always supply a filter (tests,
// generic wiring code) have a concrete zero-cost choice.
type Identity struct{}

// NewIdentity returns an Identity filter.
func NewIdentity() *Identity { return &Identity{} }

func (Identity) Setup(cb pipeline.FilterCallbacks) {}
func (Identity) Cleanup()                         {}
func (Identity) Free()                            {}

func (Identity) ULReadPending() bool { return false }
func (Identity) LLWritePending() bool { return false }
func (Identity) LLReadNeeded() bool   { return false }

func (Identity) CheckOpenDone() error             { return nil }
func (Identity) TryConnect(timeoutMillis int64) error    { return nil }
func (Identity) TryDisconnect(timeoutMillis int64) error { return nil }

func (Identity) ULWrite(sink pipeline.WriteSink, buf []byte) (int, error) { return sink(buf) }
func (Identity) LLWrite(sink pipeline.WriteSink, buf []byte) (int, error) { return sink(buf) }

func (Identity) LLUrgent() {}
func (Identity) Timeout()  {}
