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

import "net"

// Pipe is a pipeline.LL over one end of net.Pipe(): a deterministic,
// in-process transport with no real network, for the engine's own test
// suite and for filter tests that need two LL ends wired directly
// together.
type Pipe struct {
	*streamLL
}

// NewPipe wraps an already-connected net.Conn end, such as one returned by
// net.Pipe().
func NewPipe(conn net.Conn) *Pipe {
	return &Pipe{streamLL: newStreamLL(conn)}
}

// NewPipePair returns two Pipe LLs wired directly to each other via
// net.Pipe(), ready to be handed to two pipeline.Engine instances.
func NewPipePair() (*Pipe, *Pipe) {
	a, b := net.Pipe()
	return NewPipe(a), NewPipe(b)
}
