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

// state is the pipeline's lifecycle phase. It is the single source of truth
// for which operations are legal; every mutation happens with e.mu held.
type state int

const (
	stateClosed state = iota
	stateInLLOpen
	stateInFilterOpen
	stateOpen
	stateCloseWaitDrain
	stateInFilterClose
	stateInLLClose
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "CLOSED"
	case stateInLLOpen:
		return "IN_LL_OPEN"
	case stateInFilterOpen:
		return "IN_FILTER_OPEN"
	case stateOpen:
		return "OPEN"
	case stateCloseWaitDrain:
		return "CLOSE_WAIT_DRAIN"
	case stateInFilterClose:
		return "IN_FILTER_CLOSE"
	case stateInLLClose:
		return "IN_LL_CLOSE"
	default:
		return "UNKNOWN"
	}
}
