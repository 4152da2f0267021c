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

// TCP is a pipeline.LL over a TCP connection, either dialed lazily through
// Open (client side, exercising the engine's IN_LL_OPEN async path) or
// wrapping a connection already accepted from a net.Listener (server side,
// Open completes synchronously).
type TCP struct {
	*streamLL
}

// DialTCP returns a TCP LL that dials addr when the engine calls Open.
func DialTCP(addr string) *TCP {
	return &TCP{streamLL: newDialingStreamLL(func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	})}
}

// NewTCP wraps an already-connected net.Conn, typically one accepted from a
// net.Listener.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{streamLL: newStreamLL(conn)}
}
