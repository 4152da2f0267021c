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
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/pipeline"
	"github.com/xtaci/pipeline/platform"
)

// packetReadBufSize is sized for the largest UDP datagram a Packet can
// receive; pooled for the same reason streamReadBufPool is in common.go.
const packetReadBufSize = 65507

var packetReadBufPool = platform.NewBufferPool(packetReadBufSize)

// Packet is a pipeline.LL over a net.PacketConn (typically UDP) talking to
// one fixed remote peer. Unlike TCP there is no connect handshake at this
// layer — Open always completes synchronously, since the local socket is
// already bound by the time the Packet is constructed; any handshake
// belongs entirely to the filter above it.
type Packet struct {
	conn  net.PacketConn
	raddr net.Addr

	mu           sync.Mutex
	cb           pipeline.LLCallbacks
	readEnabled  bool
	writeEnabled bool
	pending      []byte
	closed       bool

	chReadEnabled chan struct{}
	die           chan struct{}
	dieOnce       sync.Once
}

// NewPacket wraps conn, a socket already bound (e.g. via net.ListenPacket),
// for exchanging datagrams with the single fixed peer raddr.
func NewPacket(conn net.PacketConn, raddr net.Addr) *Packet {
	return &Packet{
		conn:          conn,
		raddr:         raddr,
		chReadEnabled: make(chan struct{}, 1),
		die:           make(chan struct{}),
	}
}

func (p *Packet) SetCallbacks(cb pipeline.LLCallbacks) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
	go p.readLoop()
}

func (p *Packet) Open(done func(error)) error { return nil }

func (p *Packet) Close(done func(error)) error {
	p.dieOnce.Do(func() { close(p.die) })
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if err := p.conn.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (p *Packet) Free() {
	p.dieOnce.Do(func() { close(p.die) })
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.conn.Close()
}

func (p *Packet) Write(buf []byte) (int, error) {
	n, err := p.conn.WriteTo(buf, p.raddr)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (p *Packet) SetReadCallbackEnable(enable bool) {
	p.mu.Lock()
	p.readEnabled = enable
	p.mu.Unlock()
	if enable {
		select {
		case p.chReadEnabled <- struct{}{}:
		default:
		}
	}
}

// SetWriteCallbackEnable mirrors streamLL's: a packet socket gives no
// writability notification either, so "enabled" just means "try now".
func (p *Packet) SetWriteCallbackEnable(enable bool) {
	p.mu.Lock()
	transition := enable && !p.writeEnabled
	p.writeEnabled = enable
	p.mu.Unlock()
	if transition {
		go p.fireWriteReady()
	}
}

func (p *Packet) fireWriteReady() {
	select {
	case <-p.die:
		return
	default:
	}
	p.mu.Lock()
	cb := p.cb.WriteReadyCallback
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *Packet) RAddrToStr() string { return p.raddr.String() }
func (p *Packet) GetRAddr() net.Addr { return p.raddr }
func (p *Packet) RemoteID() string   { return p.raddr.String() }

func (p *Packet) readLoop() {
	buf := packetReadBufPool.Get()
	defer packetReadBufPool.Put(buf)
	for {
		p.mu.Lock()
		for !p.readEnabled && !p.closed {
			p.mu.Unlock()
			select {
			case <-p.chReadEnabled:
			case <-p.die:
				return
			}
			p.mu.Lock()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		pending := p.pending
		p.mu.Unlock()

		if len(pending) == 0 {
			for {
				n, from, err := p.conn.ReadFrom(buf)
				if err != nil {
					p.deliverErr(errors.WithStack(err))
					return
				}
				if from.String() != p.raddr.String() {
					// datagram from a peer other than the one this Packet
					// is bound to; not part of this stream.
					continue
				}
				pending = buf[:n]
				break
			}
		}

		p.mu.Lock()
		cb := p.cb.ReadCallback
		p.mu.Unlock()
		consumed := len(pending)
		if cb != nil {
			consumed = cb(nil, pending, len(pending))
		}

		rest := pending[consumed:]
		p.mu.Lock()
		if len(rest) > 0 {
			owned := make([]byte, len(rest))
			copy(owned, rest)
			p.pending = owned
		} else {
			p.pending = nil
		}
		p.mu.Unlock()
	}
}

func (p *Packet) deliverErr(err error) {
	p.mu.Lock()
	cb := p.cb.ReadCallback
	p.mu.Unlock()
	if cb != nil {
		cb(err, nil, 0)
	}
}
