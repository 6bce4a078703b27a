// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.


// Package termstat provides a harvest.Statter which keeps a single progress
// line refreshed on a terminal, e.g.
//
//	sol: 1043 sols: 12 files: 310 observations: 309 skipped: 1
//
// Counts accumulate; gauges show their latest value.
package termstat

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	harvest "github.com/pilosa/pdsharvest"
)

var _ harvest.Statter = &Collector{}

// Collector collects stats and prints them to the terminal
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []string
	counts  []int64
	changed bool
	out     io.Writer

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewCollector starts a Collector which rewrites its line on out every
// interval until Close is called.
func NewCollector(out io.Writer, interval time.Duration) *Collector {
	ts := &Collector{
		indexes: make(map[string]int),
		out:     out,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go func() {
		defer close(ts.stopped)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				ts.write()
			case <-ts.done:
				return
			}
		}
	}()
	return ts
}

func (t *Collector) slot(name string) int {
	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, "")
		t.counts = append(t.counts, 0)
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	return idx
}

// Count adds value to the named stat.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	idx := t.slot(name)
	t.counts[idx] += value
	t.stats[idx] = fmt.Sprintf("%d", t.counts[idx])
	t.changed = true
}

// Gauge replaces the named stat with value.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stats[t.slot(name)] = harvest.FormatFloat(value)
	t.changed = true
}

// Timing replaces the named stat with a duration.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stats[t.slot(name)] = value.Round(time.Millisecond).String()
	t.changed = true
}

// Line returns the current progress line.
func (t *Collector) Line() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.line()
}

func (t *Collector) line() string {
	sb := strings.Builder{}
	for i := 0; i < len(t.stats); i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		_, _ = sb.WriteString(t.names[i] + ": " + t.stats[i])
	}
	return sb.String()
}

func (t *Collector) write() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	t.changed = false
	fmt.Fprint(t.out, "\r"+t.line())
}

// Close stops refreshing, writes the final line, and ends it with a newline.
func (t *Collector) Close() error {
	t.once.Do(func() {
		close(t.done)
		<-t.stopped
		t.write()
		fmt.Fprintln(t.out)
	})
	return nil
}
