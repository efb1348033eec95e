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
	"context"
	"sort"
	"sync"
)

// registry maps folder ids to their open handler. It holds at most one live
// handler per folder id, and remembers handlers being retired so that a
// folder is not loaded again before its previous handler has drained.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
	retiring map[string]*Handler
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[string]*Handler),
		retiring: make(map[string]*Handler),
	}
}

// get returns the live handler of a folder
func (r *registry) get(folderID string) (*Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[folderID]
	r.mu.RUnlock()
	return h, ok
}

// putIfAbsent registers h unless the folder already has a live handler, in
// which case the existing handler is returned with false.
func (r *registry) putIfAbsent(h *Handler) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handlers[h.ID()]; ok {
		return current, false
	}
	r.handlers[h.ID()] = h
	return h, true
}

// detach unregisters h and marks it as retiring. It returns false when h is
// no longer the live handler of its folder.
func (r *registry) detach(h *Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handlers[h.ID()]; !ok || current != h {
		return false
	}
	delete(r.handlers, h.ID())
	r.retiring[h.ID()] = h
	return true
}

// retired forgets a handler once it has drained
func (r *registry) retired(h *Handler) {
	r.mu.Lock()
	if current, ok := r.retiring[h.ID()]; ok && current == h {
		delete(r.retiring, h.ID())
	}
	r.mu.Unlock()
}

// awaitRetired blocks while a previous handler of the folder is draining
func (r *registry) awaitRetired(ctx context.Context, folderID string) error {
	r.mu.RLock()
	h, ok := r.retiring[folderID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case <-h.closedSignal():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// leastRecentlyActive returns the idle live handler with the oldest activity,
// skipping the given one. Busy handlers are never picked.
func (r *registry) leastRecentlyActive(skip *Handler) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *Handler
	for _, h := range r.handlers {
		if h == skip || h.isBusy() {
			continue
		}
		if oldest == nil || h.LastActivity().Before(oldest.LastActivity()) {
			oldest = h
		}
	}
	return oldest, oldest != nil
}

func (r *registry) all() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make([]*Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

// draining returns the handlers detached but not yet retired
func (r *registry) draining() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make([]*Handler, 0, len(r.retiring))
	for _, h := range r.retiring {
		handlers = append(handlers, h)
	}
	return handlers
}

// ids returns the ids of the open folders in lexical order
func (r *registry) ids() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
