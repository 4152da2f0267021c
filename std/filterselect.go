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
	"github.com/xtaci/pipeline"
	"github.com/xtaci/pipeline/filter"
)

// SelectFilter translates a human readable method name into a concrete
// pipeline.Filter, the way SelectBlockCrypt used to translate a cipher name
// into a kcp.BlockCrypt. "none"/"identity" falls back to filter.Compress
// when compress is requested, or filter.Identity otherwise; "compress",
// "qpp" and "telnet" select those filters directly; anything else is looked up in
// filter.Crypto's own cipher-suite table ("aes-ctr", "salsa20", "aes-gcm").
//
// Only one filter runs per connection — cmd/client and cmd/server pick
// exactly one of compression, encryption, QPP or telnet per engine, rather
// than layering several, since stacking independently-buffering filters
// behind a single Filter slot would need a composing adapter that is easy
// to get subtly wrong without the ability to run it.
func SelectFilter(method string, pass []byte, qppCount int, compress bool) (pipeline.Filter, error) {
	switch method {
	case "", "none", "identity":
		if compress {
			return filter.NewCompress(), nil
		}
		return filter.NewIdentity(), nil
	case "compress":
		return filter.NewCompress(), nil
	case "qpp":
		return filter.NewQPP(qppCount, pass), nil
	case "telnet":
		return filter.NewTelnet(), nil
	default:
		return filter.NewCrypto(method, pass)
	}
}
