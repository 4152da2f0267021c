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
	"fmt"
	"math/big"

	"github.com/xtaci/pipeline"
	"github.com/xtaci/qpp"
)

// qppQubits is the permutation dimension used throughout, matching
// std/qpp.go's qppPower.
const qppQubits = 8

// ValidateQPPParams reports fatal configuration errors and non-fatal
// warnings for a proposed (count, seed) pair, adapted from std/qpp.go's
// helper of the same name.
func ValidateQPPParams(count int, seed string) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("filter: qpp pad count must be greater than 0")
	}
	var warnings []string
	if minLen := qpp.QPPMinimumSeedLength(qppQubits); len(seed) < minLen {
		warnings = append(warnings, fmt.Sprintf("qpp: seed is %d bytes, want at least %d", len(seed), minLen))
	}
	if minPads := qpp.QPPMinimumPads(qppQubits); count < minPads {
		warnings = append(warnings, fmt.Sprintf("qpp: pad count %d, want at least %d", count, minPads))
	}
	if new(big.Int).GCD(nil, nil, big.NewInt(int64(count)), big.NewInt(qppQubits)).Int64() != 1 {
		warnings = append(warnings, fmt.Sprintf("qpp: pad count %d should be coprime with %d for best security", count, qppQubits))
	}
	return warnings, nil
}

// QPP is a pipeline.Filter wrapping a Quantum Permutation Pad: a
// pre-shared-seed permutation cipher with no handshake of its own, adapted
// from std/qpp.go's QPPPort (an io.ReadWriteCloser wrapper) to this layer's
// sink-based contract. As in QPPPort, both directions derive their PRNG
// from the same seed; keeping the two sides' PRNGs in lockstep depends on
// both processing the same total byte count in the same order, which holds
// here because ULWrite/LLWrite each advance their own PRNG exactly once per
// byte, same as the original.
type QPP struct {
	cb pipeline.FilterCallbacks

	pad   *qpp.QuantumPermutationPad
	wprng *qpp.Rand
	rprng *qpp.Rand

	llBuf []byte
	ulBuf []byte
}

// NewQPP builds a QPP filter over count pads derived from seed.
func NewQPP(count int, seed []byte) *QPP {
	return &QPP{
		pad:   qpp.NewQPP(seed, uint16(count)),
		wprng: qpp.CreatePRNG(seed),
		rprng: qpp.CreatePRNG(seed),
	}
}

func (q *QPP) Setup(cb pipeline.FilterCallbacks) { q.cb = cb }
func (q *QPP) Cleanup()                          {}
func (q *QPP) Free()                             {}

func (q *QPP) ULReadPending() bool  { return len(q.ulBuf) > 0 }
func (q *QPP) LLWritePending() bool { return len(q.llBuf) > 0 }
func (q *QPP) LLReadNeeded() bool   { return false }

func (q *QPP) CheckOpenDone() error                     { return nil }
func (q *QPP) TryConnect(timeoutMillis int64) error     { return nil }
func (q *QPP) TryDisconnect(timeoutMillis int64) error  { return nil }

func (q *QPP) ULWrite(sink pipeline.WriteSink, buf []byte) (int, error) {
	if len(buf) > 0 {
		ct := make([]byte, len(buf))
		copy(ct, buf)
		q.pad.EncryptWithPRNG(ct, q.wprng)
		q.llBuf = append(q.llBuf, ct...)
	}
	for len(q.llBuf) > 0 {
		n, err := sink(q.llBuf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		q.llBuf = q.llBuf[n:]
	}
	if len(q.llBuf) > 0 && q.cb.OutputReady != nil {
		q.cb.OutputReady()
	}
	return len(buf), nil
}

func (q *QPP) LLWrite(sink pipeline.WriteSink, buf []byte) (int, error) {
	if len(buf) > 0 {
		pt := make([]byte, len(buf))
		copy(pt, buf)
		q.pad.DecryptWithPRNG(pt, q.rprng)
		q.ulBuf = append(q.ulBuf, pt...)
	}
	for len(q.ulBuf) > 0 {
		n, err := sink(q.ulBuf)
		if err != nil {
			return len(buf), err
		}
		if n == 0 {
			break
		}
		q.ulBuf = q.ulBuf[n:]
	}
	return len(buf), nil
}

func (q *QPP) LLUrgent() {}
func (q *QPP) Timeout()  {}
