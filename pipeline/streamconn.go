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

import (
	"io"
	"sync"
)

// highWaterMark bounds how far Conn lets its internal read buffer grow
// before disabling the engine's read callback; it is re-enabled once the
// buffer has drained back below the mark. Mirrors the read/write-enable
// backpressure the engine already exposes, just applied from the blocking
// side instead of a second callback-driven consumer.
const highWaterMark = 64 * 1024

// Conn adapts one Engine into a blocking io.ReadWriteCloser, for call sites
// — an io.Copy loop, smux.Client/smux.Server — that want a conventional
// stream instead of the engine's native callback interface. It mirrors the
// chReadEvent/recvbuf/bufptr triad xtaci/kcp-go's UDPSession uses to turn
// its own callback-driven receive path into a blocking Read, generalized to
// sit on top of the filter-mediated engine instead of directly over a kcp
// core.
type Conn struct {
	e *Engine

	mu     sync.Mutex
	buf    []byte
	rdErr  error
	closed bool

	chReadEvent  chan struct{}
	chWriteEvent chan struct{}
	die          chan struct{}
	dieOnce      sync.Once
}

// NewConn constructs a Conn wired over a fresh Engine for ll/filter. server
// selects the engine's initial state exactly as Engine.New does.
func NewConn(ll LL, filter Filter, server bool) *Conn {
	c := &Conn{
		chReadEvent:  make(chan struct{}, 1),
		chWriteEvent: make(chan struct{}, 1),
		die:          make(chan struct{}),
	}
	c.e = New(ll, filter, server,
		WithReadCallback(c.onRead),
		WithWriteCallback(c.onWriteReady),
	)
	return c
}

// Engine exposes the underlying callback-driven engine, for callers that
// need RAddrToStr/GetRAddr/RemoteID/Stats alongside the blocking interface.
func (c *Conn) Engine() *Engine { return c.e }

// Open drives the engine's open handshake to completion (or failure) and
// blocks until it does.
func (c *Conn) Open() error {
	result := make(chan error, 1)
	err := c.e.Open(func(err error) { result <- err })
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		if err == nil {
			c.e.SetReadEnable(true)
		}
		return err
	case <-c.die:
		return io.ErrClosedPipe
	}
}

func (c *Conn) onRead(err error, buf []byte, n int, _ ReadFlags) int {
	if err != nil {
		c.mu.Lock()
		if c.rdErr == nil {
			c.rdErr = err
		}
		c.mu.Unlock()
		c.notify(c.chReadEvent)
		return 0
	}

	c.mu.Lock()
	c.buf = append(c.buf, buf[:n]...)
	full := len(c.buf) >= highWaterMark
	c.mu.Unlock()
	if full {
		c.e.SetReadEnable(false)
	}
	c.notify(c.chReadEvent)
	return n
}

func (c *Conn) onWriteReady() {
	c.notify(c.chWriteEvent)
}

func (c *Conn) notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Read implements io.Reader, blocking until at least one byte (or a
// terminal error) is available.
func (c *Conn) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			n := copy(b, c.buf)
			c.buf = c.buf[n:]
			belowMark := len(c.buf) < highWaterMark
			c.mu.Unlock()
			if belowMark {
				c.e.SetReadEnable(true)
			}
			return n, nil
		}
		if c.rdErr != nil {
			err := c.rdErr
			c.mu.Unlock()
			return 0, err
		}
		if c.closed {
			c.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		c.mu.Unlock()

		select {
		case <-c.chReadEvent:
		case <-c.die:
			return 0, io.ErrClosedPipe
		}
	}
}

// Write implements io.Writer, blocking until the engine has accepted every
// byte of b or returned a terminal error.
func (c *Conn) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := c.e.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			select {
			case <-c.chWriteEvent:
			case <-c.die:
				return total, io.ErrClosedPipe
			}
		}
	}
	return total, nil
}

// Close implements io.Closer, blocking until the engine's close sequence
// reaches CLOSED.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.dieOnce.Do(func() { close(c.die) })

	result := make(chan error, 1)
	err := c.e.Close(func(err error) { result <- err })
	if err != nil {
		// Already mid-close or never opened; nothing more to wait for.
		return nil
	}
	return <-result
}
