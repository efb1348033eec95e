// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
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

package folder

import (
	cheaps "container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/foldersync/internal/types"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/passivation"
)

// passivationScheduler retires idle folders.
//   - Time-based strategies register a deadline and are tracked in a min-heap so
//     the scheduler always fires the next expiring folder with O(log n) updates,
//     without per-folder goroutines or tickers.
//   - Every processed command pushes the deadline of its folder back.
//   - Long-lived strategies are not tracked at all.
type passivationScheduler struct {
	logger log.Logger

	mu      sync.Mutex
	entries map[string]*passivationEntry
	queue   passivationHeap

	wake chan types.Unit
	// stop and done are recreated on every Start
	stop    chan types.Unit
	done    chan types.Unit
	started *atomic.Bool

	// passivateFn retires the handler and reports whether it did
	passivateFn func(*Handler) bool
}

// passivationEntry stores the scheduling metadata of a handler.
// index is the position within the heap; -1 means "not present in heap".
type passivationEntry struct {
	handler  *Handler
	id       string
	timeout  time.Duration
	deadline time.Time
	index    int
}

func newPassivationScheduler(logger log.Logger, passivateFn func(*Handler) bool) *passivationScheduler {
	return &passivationScheduler{
		logger:      logger,
		entries:     make(map[string]*passivationEntry),
		queue:       passivationHeap{},
		wake:        make(chan types.Unit, 1),
		started:     atomic.NewBool(false),
		passivateFn: passivateFn,
	}
}

func (m *passivationScheduler) Start(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started.Load() {
		return
	}

	m.stop = make(chan types.Unit)
	m.done = make(chan types.Unit)
	m.started.Store(true)
	go m.run(m.stop, m.done)
}

// Stop ends the scheduling loop. It returns ctx.Err() when ctx is done
// before the loop exits.
func (m *passivationScheduler) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started.Load() {
		m.mu.Unlock()
		return nil
	}

	m.started.Store(false)
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register schedules the handler according to the strategy.
// Registering an already scheduled handler reschedules it.
func (m *passivationScheduler) Register(h *Handler, strategy passivation.Strategy) {
	if h == nil || strategy == nil || !m.started.Load() {
		return
	}

	timeBased, ok := strategy.(*passivation.TimeBasedStrategy)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[h.ID()]
	if !ok || entry.handler != h {
		entry = &passivationEntry{
			handler: h,
			id:      h.ID(),
			index:   -1,
		}
		m.entries[h.ID()] = entry
	}

	if entry.index >= 0 {
		cheaps.Remove(&m.queue, entry.index)
		entry.index = -1
	}

	entry.timeout = timeBased.Timeout()
	entry.refreshDeadline()
	cheaps.Push(&m.queue, entry)
	m.notifyLocked()
}

// Unregister removes a handler from any passivation bookkeeping.
func (m *passivationScheduler) Unregister(h *Handler) {
	if h == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[h.ID()]
	if !ok || entry.handler != h {
		return
	}

	if entry.index >= 0 {
		cheaps.Remove(&m.queue, entry.index)
		entry.index = -1
	}
	delete(m.entries, h.ID())
}

// Touch refreshes the inactivity deadline after a command was processed.
func (m *passivationScheduler) Touch(h *Handler) {
	if h == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[h.ID()]
	if !ok || entry.handler != h || entry.index < 0 {
		return
	}

	entry.refreshDeadline()
	cheaps.Fix(&m.queue, entry.index)
	m.notifyLocked()
}

// Len returns the number of scheduled handlers
func (m *passivationScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// run multiplexes between deadlines and shutdown signals.
func (m *passivationScheduler) run(stop, done chan types.Unit) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	for {
		entry, wait := m.nextEntry()
		if entry == nil {
			select {
			case <-m.wake:
				continue
			case <-stop:
				timer.Stop()
				close(done)
				return
			}
		}

		if wait <= 0 {
			m.trigger(entry)
			continue
		}

		timer.Reset(wait)

		select {
		case <-timer.C:
			m.trigger(entry)
		case <-m.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-stop:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			close(done)
			return
		}
	}
}

func (m *passivationScheduler) nextEntry() (*passivationEntry, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, 0
	}

	entry := m.queue[0]
	wait := time.Until(entry.deadline)
	if wait < 0 {
		wait = 0
	}
	return entry, wait
}

// trigger retires the expected entry when it is still the earliest and its
// deadline has passed. A handler that could not be retired is rescheduled.
func (m *passivationScheduler) trigger(expected *passivationEntry) {
	m.mu.Lock()
	if len(m.queue) == 0 || m.queue[0] != expected || expected.deadline.After(time.Now()) {
		m.mu.Unlock()
		return
	}

	cheaps.Pop(&m.queue)
	expected.index = -1
	m.mu.Unlock()

	passivated := m.passivateFn(expected.handler)

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.entries[expected.id]
	if !ok || current != expected {
		return
	}

	if passivated {
		delete(m.entries, expected.id)
		return
	}

	// a refused handler gets at least one more full period
	expected.refreshDeadline()
	if now := time.Now(); !expected.deadline.After(now) {
		expected.deadline = now.Add(expected.timeout)
	}
	cheaps.Push(&m.queue, expected)
	m.notifyLocked()
}

func (m *passivationScheduler) notifyLocked() {
	select {
	case m.wake <- types.Unit{}:
	default:
	}
}

// refreshDeadline recomputes the absolute deadline from the handler's last
// activity so that retirement only fires after a full period of inactivity.
func (entry *passivationEntry) refreshDeadline() {
	last := entry.handler.LastActivity()
	if last.IsZero() {
		last = time.Now()
	}
	entry.deadline = last.Add(entry.timeout)
}

type passivationHeap []*passivationEntry

func (h passivationHeap) Len() int { return len(h) }

func (h passivationHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h passivationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *passivationHeap) Push(x any) {
	entry := x.(*passivationEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *passivationHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	entry.index = -1
	*h = old[:n-1]
	return entry
}
