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

// Package transport supplies concrete pipeline.LL implementations: TCP,
// Packet (a single fixed-peer net.PacketConn), and Pipe (an in-process
// net.Pipe end for tests). Each gates its background read loop on an
// enable flag the engine drives through SetReadCallbackEnable, the same
// notify-channel idiom xtaci/kcp-go's UDPSession uses internally
// (chReadEvent/notifyReadEvent), generalized into a reusable read-callback
// delivery loop instead of a blocking Read().
package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/pipeline"
	"github.com/xtaci/pipeline/platform"
)

// StreamReadBufSize is the staging buffer size for one streamLL's readLoop.
// Pooled via platform.BufferPool so a long-running process dialing and
// closing many short-lived connections reuses buffers instead of growing
// the heap by one 4KB slice per connection. Exported so callers layering a
// framed protocol (e.g. smux) over a stream LL can size frames sensibly
// against it.
const StreamReadBufSize = 4096

var streamReadBufPool = platform.NewBufferPool(StreamReadBufSize)

// streamLL is the shared pipeline.LL implementation over anything shaped
// like a net.Conn: TCP and Pipe both wrap one.
type streamLL struct {
	mu   sync.Mutex
	conn net.Conn
	dial func() (net.Conn, error)

	cb           pipeline.LLCallbacks
	readEnabled  bool
	writeEnabled bool
	pending      []byte
	closed       bool

	chReadEnabled chan struct{}
	die           chan struct{}
	dieOnce       sync.Once
}

func newStreamLL(conn net.Conn) *streamLL {
	return &streamLL{
		conn:          conn,
		chReadEnabled: make(chan struct{}, 1),
		die:           make(chan struct{}),
	}
}

func newDialingStreamLL(dial func() (net.Conn, error)) *streamLL {
	return &streamLL{
		dial:          dial,
		chReadEnabled: make(chan struct{}, 1),
		die:           make(chan struct{}),
	}
}

func (s *streamLL) SetCallbacks(cb pipeline.LLCallbacks) {
	s.mu.Lock()
	s.cb = cb
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		go s.readLoop()
	}
}

// Open completes synchronously when the net.Conn already exists (an
// accepted connection, or one end of a net.Pipe). When constructed with a
// dialer instead, the dial itself runs on its own goroutine and reports
// through done — this is the one LL operation in this package that
// exercises the engine's IN_LL_OPEN async-open path.
func (s *streamLL) Open(done func(error)) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	dial := s.dial
	s.mu.Unlock()

	if dial == nil {
		return errors.New("transport: no connection or dialer configured")
	}

	go func() {
		conn, err := dial()
		if err != nil {
			done(errors.WithStack(err))
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		go s.readLoop()
		done(nil)
	}()
	return pipeline.ErrInProgress
}

func (s *streamLL) Close(done func(error)) error {
	s.dieOnce.Do(func() { close(s.die) })
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (s *streamLL) Free() {
	s.dieOnce.Do(func() { close(s.die) })
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *streamLL) Write(buf []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, errors.New("transport: write before open completes")
	}
	n, err := conn.Write(buf)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (s *streamLL) SetReadCallbackEnable(enable bool) {
	s.mu.Lock()
	s.readEnabled = enable
	s.mu.Unlock()
	if enable {
		select {
		case s.chReadEnabled <- struct{}{}:
		default:
		}
	}
}

// SetWriteCallbackEnable fires WriteReadyCallback once, asynchronously, on
// every false→true transition. A net.Conn has no writability notification
// of its own — Write either fully succeeds or fails, it never reports a
// short write waiting to drain — so "enabled" here just means "yes, try
// now", which is exactly what the engine needs to kick its handshake and
// drain-on-close steps along (spec.md §4.2/§4.3).
func (s *streamLL) SetWriteCallbackEnable(enable bool) {
	s.mu.Lock()
	transition := enable && !s.writeEnabled
	s.writeEnabled = enable
	s.mu.Unlock()
	if transition {
		go s.fireWriteReady()
	}
}

func (s *streamLL) fireWriteReady() {
	select {
	case <-s.die:
		return
	default:
	}
	s.mu.Lock()
	cb := s.cb.WriteReadyCallback
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *streamLL) RAddrToStr() string {
	if a := s.GetRAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (s *streamLL) GetRAddr() net.Addr {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.RemoteAddr()
}

func (s *streamLL) RemoteID() string { return s.RAddrToStr() }

// readLoop waits for read-enable, pulls bytes off the connection (or
// re-presents bytes the engine didn't fully consume last time), and
// delivers them via the engine's ReadCallback. It exits on a read error
// (after delivering it) or on Close/Free.
func (s *streamLL) readLoop() {
	buf := streamReadBufPool.Get()
	defer streamReadBufPool.Put(buf)
	for {
		s.mu.Lock()
		for !s.readEnabled && !s.closed {
			s.mu.Unlock()
			select {
			case <-s.chReadEnabled:
			case <-s.die:
				return
			}
			s.mu.Lock()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		pending := s.pending
		conn := s.conn
		s.mu.Unlock()

		if len(pending) == 0 {
			n, err := conn.Read(buf)
			if err != nil {
				s.deliverErr(errors.WithStack(err))
				return
			}
			pending = buf[:n]
		}

		s.mu.Lock()
		cb := s.cb.ReadCallback
		s.mu.Unlock()
		consumed := len(pending)
		if cb != nil {
			consumed = cb(nil, pending, len(pending))
		}

		rest := pending[consumed:]
		s.mu.Lock()
		if len(rest) > 0 {
			owned := make([]byte, len(rest))
			copy(owned, rest)
			s.pending = owned
		} else {
			s.pending = nil
		}
		s.mu.Unlock()
	}
}

func (s *streamLL) deliverErr(err error) {
	s.mu.Lock()
	cb := s.cb.ReadCallback
	s.mu.Unlock()
	if cb != nil {
		cb(err, nil, 0)
	}
}
