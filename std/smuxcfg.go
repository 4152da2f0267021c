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

package std

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/pipeline/transport"
	"github.com/xtaci/smux"
)

// BuildSmuxConfig constructs a smux.Config for multiplexing streams over a
// pipeline.Conn (cmd/client and cmd/server both wrap one per engine with
// smux.Client/smux.Server). Unlike a raw net.Conn, a pipeline.Conn's reads
// are bounded by whatever the LL beneath it stages per callback, so a smux
// frame larger than transport.StreamReadBufSize would never arrive in one
// LL read — it still reassembles correctly, just over more round trips
// through the engine's read path, so this is only reported as a warning
// rather than rejected outright by VerifyConfig.
func BuildSmuxConfig(version, maxReceiveBuffer, maxStreamBuffer, maxFrameSize, keepAliveSeconds int) ([]string, *smux.Config, error) {
	cfg := smux.DefaultConfig()
	cfg.Version = version
	cfg.MaxReceiveBuffer = maxReceiveBuffer
	cfg.MaxStreamBuffer = maxStreamBuffer
	cfg.MaxFrameSize = maxFrameSize
	cfg.KeepAliveInterval = time.Duration(keepAliveSeconds) * time.Second

	if err := smux.VerifyConfig(cfg); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	var warnings []string
	if frameExceedsStreamStaging(maxFrameSize) {
		warnings = append(warnings, fmt.Sprintf(
			"smux: max-frame-size %d exceeds the %d-byte stream read buffer; frames will reassemble over extra round trips",
			maxFrameSize, transport.StreamReadBufSize))
	}
	return warnings, cfg, nil
}

// frameExceedsStreamStaging reports whether maxFrameSize is large enough
// that a single smux frame could never fit in one streamLL read.
func frameExceedsStreamStaging(maxFrameSize int) bool {
	return maxFrameSize > transport.StreamReadBufSize
}
