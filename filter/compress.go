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
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/xtaci/pipeline"
)

// frameHeaderLen is the size of the length prefix put in front of each
// snappy-encoded block on the wire.
const frameHeaderLen = 4

// Compress is a pipeline.Filter that snappy-compresses every Write as one
// length-prefixed frame and reverses the framing on the way in. It has no
// handshake: TryConnect/TryDisconnect complete immediately.
//
// Grounded on std/comp.go's CompStream, which wraps a net.Conn directly with
// snappy.NewBufferedWriter/NewReader; here the same block-compression
// primitive is adapted to the engine's sink-based ULWrite/LLWrite contract,
// which needs explicit frame boundaries since snappy's block API (unlike its
// streaming Writer) has no self-delimiting format of its own.
type Compress struct {
	cb pipeline.FilterCallbacks

	llBuf []byte // encoded bytes not yet handed to the LL write sink
	rxBuf []byte // raw LL bytes accumulated while a frame is incomplete
}

// NewCompress returns a Compress filter.
func NewCompress() *Compress { return &Compress{} }

func (c *Compress) Setup(cb pipeline.FilterCallbacks) { c.cb = cb }
func (c *Compress) Cleanup()                          {}
func (c *Compress) Free()                             {}

// ULReadPending reports whether a complete frame is already sitting in
// rxBuf, undecoded because a previous LLWrite's sink call was short (the
// user's read callback applied backpressure): there are upper-layer bytes
// available without needing another LL read.
func (c *Compress) ULReadPending() bool {
	if len(c.rxBuf) < frameHeaderLen {
		return false
	}
	frameLen := int(binary.BigEndian.Uint32(c.rxBuf))
	return len(c.rxBuf) >= frameHeaderLen+frameLen
}

func (c *Compress) LLWritePending() bool { return len(c.llBuf) > 0 }
func (c *Compress) LLReadNeeded() bool   { return false }

func (c *Compress) CheckOpenDone() error                     { return nil }
func (c *Compress) TryConnect(timeoutMillis int64) error     { return nil }
func (c *Compress) TryDisconnect(timeoutMillis int64) error  { return nil }

// ULWrite encodes buf as one frame, appends it to llBuf, and drains as much
// of llBuf as the LL sink currently accepts. buf is always fully accepted;
// any encoded bytes the sink doesn't take are retained in llBuf and flushed
// on a future write-ready (LLWritePending becomes true, which drives
// OutputReady via the caller's normal write-enable reconciliation).
func (c *Compress) ULWrite(sink pipeline.WriteSink, buf []byte) (int, error) {
	if len(buf) > 0 {
		encoded := snappy.Encode(nil, buf)
		frame := make([]byte, frameHeaderLen+len(encoded))
		binary.BigEndian.PutUint32(frame, uint32(len(encoded)))
		copy(frame[frameHeaderLen:], encoded)
		c.llBuf = append(c.llBuf, frame...)
	}
	if err := c.drainLLBuf(sink); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c *Compress) drainLLBuf(sink pipeline.WriteSink) error {
	for len(c.llBuf) > 0 {
		n, err := sink(c.llBuf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		c.llBuf = c.llBuf[n:]
	}
	if len(c.llBuf) > 0 && c.cb.OutputReady != nil {
		c.cb.OutputReady()
	}
	return nil
}

// LLWrite accumulates raw LL bytes and decodes every complete frame,
// delivering each to sink in turn. A short sink call (read backpressure)
// stops decoding further frames for this call; the undelivered frame stays
// in rxBuf and is retried on the next LLWrite (including the zero-length
// deferred-read call the engine issues once read-enable returns). buf is
// always fully absorbed into rxBuf, so the returned count is always
// len(buf): nothing is ever left for the engine to re-present.
func (c *Compress) LLWrite(sink pipeline.WriteSink, buf []byte) (int, error) {
	c.rxBuf = append(c.rxBuf, buf...)
	for {
		if len(c.rxBuf) < frameHeaderLen {
			break
		}
		frameLen := int(binary.BigEndian.Uint32(c.rxBuf))
		if len(c.rxBuf) < frameHeaderLen+frameLen {
			break
		}
		encoded := c.rxBuf[frameHeaderLen : frameHeaderLen+frameLen]
		decoded, err := snappy.Decode(nil, encoded)
		if err != nil {
			return len(buf), errors.Wrap(err, "filter: snappy decode")
		}
		n, err := sink(decoded)
		if err != nil {
			return len(buf), err
		}
		if n < len(decoded) {
			break
		}
		c.rxBuf = c.rxBuf[frameHeaderLen+frameLen:]
	}
	return len(buf), nil
}

func (c *Compress) LLUrgent() {}
func (c *Compress) Timeout()  {}
