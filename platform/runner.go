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

package platform

import "sync"

// Runner is a single reusable goroutine that executes deferred work handed
// to it via Schedule. It exists so user-visible callbacks can be delivered
// outside of any LL/filter callback stack, avoiding the lock-nesting and
// reentrancy hazards described in spec.md §4.4/§9. The dispatch loop
// mirrors the prepend/sched split in xtaci/kcp-go's timedsched.go, narrowed
// to one runner per engine instead of one shared, parallel scheduler.
type Runner struct {
	ch       chan func()
	done     chan struct{}
	closeOne sync.Once
}

// NewRunner starts a Runner's dispatch goroutine.
func NewRunner() *Runner {
	r := &Runner{
		ch:   make(chan func(), 1),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	for {
		select {
		case fn := <-r.ch:
			fn()
		case <-r.done:
			return
		}
	}
}

// Schedule enqueues fn to run on the runner's goroutine. The caller is
// responsible for idempotence (spec.md §4.4: at most one deferred op in
// flight); Schedule itself just posts the work.
func (r *Runner) Schedule(fn func()) {
	select {
	case r.ch <- fn:
	case <-r.done:
	}
}

// Close stops the dispatch goroutine. Safe to call more than once.
func (r *Runner) Close() {
	r.closeOne.Do(func() { close(r.done) })
}
