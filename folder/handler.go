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
	"errors"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/tochemey/foldersync/delta"
	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/internal/metric"
	"github.com/tochemey/foldersync/internal/types"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

// handlerConfig carries what a Handler needs from its Manager
type handlerConfig struct {
	queueCapacity int
	logger        log.Logger
	factory       SynchronizerFactory
	metric        *metric.FolderMetric
	// onActivity is called after every processed command
	onActivity func(*Handler)
}

// Handler is the in-memory representative of one open folder. Commands sent
// to a Handler are applied strictly in the order they were accepted.
//
// A Handler is retired when its folder is evicted, explicitly closed or when
// the Manager stops. Retiring drains every accepted command; afterwards the
// Handler rejects commands with ErrHandlerClosed.
type Handler struct {
	folderID     string
	queue        *queue.RingBuffer
	slots        *semaphore.Weighted
	runner       *commandRunner
	synchronizer Synchronizer
	logger       log.Logger

	mu     sync.RWMutex
	closed bool
	done   chan types.Unit
	// retired is closed by the Manager once the retirement completed
	retired chan types.Unit

	lastActivity *atomic.Time
}

// newHandler decodes the folder record, builds its Synchronizer and wires
// the command queue. The runner only starts on the first command.
func newHandler(record *persistence.FolderRecord, store persistence.Persistence, config *handlerConfig) (*Handler, error) {
	document, err := delta.FromBytes(record.Text)
	if err != nil {
		return nil, gerrors.NewErrInvalidFolderData(record.FolderID, err)
	}

	logger := config.logger.With("folder", record.FolderID)
	synchronizer := config.factory(record.FolderID, record.RevID, document, store, logger)
	capacity := config.queueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	h := &Handler{
		folderID:     record.FolderID,
		queue:        queue.NewRingBuffer(uint64(capacity)),
		slots:        semaphore.NewWeighted(int64(capacity)),
		synchronizer: synchronizer,
		logger:       logger,
		done:         make(chan types.Unit),
		retired:      make(chan types.Unit),
		lastActivity: atomic.NewTime(time.Now()),
	}

	h.runner = &commandRunner{
		folderID:     h.folderID,
		queue:        h.queue,
		slots:        h.slots,
		synchronizer: synchronizer,
		processing:   atomic.NewInt32(idle),
		logger:       logger,
		metric:       config.metric,
		onProcessed: func() {
			h.lastActivity.Store(time.Now())
			if config.onActivity != nil {
				config.onActivity(h)
			}
		},
	}
	return h, nil
}

// ID returns the folder id
func (h *Handler) ID() string {
	return h.folderID
}

// RevID returns the last revision id composed by the folder Synchronizer,
// or -1 when the Synchronizer does not expose it.
func (h *Handler) RevID() int64 {
	if reader, ok := h.synchronizer.(revIDReader); ok {
		return reader.RevID()
	}
	return -1
}

// LastActivity returns when the folder last completed a command
func (h *Handler) LastActivity() time.Time {
	return h.lastActivity.Load()
}

// ApplyRevisions queues the revisions and waits for the Synchronizer outcome.
// When ctx is done first, ctx.Err() is returned and the command still runs.
func (h *Handler) ApplyRevisions(ctx context.Context, user message.User, revisions []*revision.Revision) error {
	return h.send(ctx, newApplyRevisions(ctx, user, revisions))
}

// Ping queues a ping carrying the client's last revision id and waits for
// the Synchronizer outcome.
func (h *Handler) Ping(ctx context.Context, user message.User, revID int64) error {
	return h.send(ctx, newPing(ctx, user, revID))
}

// IsClosed reports whether the handler has been retired
func (h *Handler) IsClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// isBusy reports whether a command is running or waiting in the queue.
// LastActivity only moves once a command completes, so a busy handler is
// active whatever its last activity says.
func (h *Handler) isBusy() bool {
	return h.runner.processing.Load() == busy || h.queue.Len() > 0
}

func (h *Handler) send(ctx context.Context, cmd *command) error {
	if err := h.enqueue(ctx, cmd); err != nil {
		return err
	}
	return cmd.reply.await(ctx)
}

// enqueue accepts the command unless the handler is closed. It blocks while
// the queue is full, until a slot frees up or ctx is done.
func (h *Handler) enqueue(ctx context.Context, cmd *command) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return gerrors.NewErrHandlerClosed(h.folderID)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	if err := h.queue.Put(cmd); err != nil {
		h.slots.Release(1)
		if errors.Is(err, queue.ErrDisposed) {
			return gerrors.NewErrHandlerClosed(h.folderID)
		}
		return err
	}

	h.runner.process()
	return nil
}

// close rejects new commands, waits for the accepted ones to complete and
// releases the queue. It returns false when the handler was already closed.
func (h *Handler) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.closed = true
	h.runner.wait()
	h.queue.Dispose()
	close(h.done)
	h.logger.Debugf("folder %s handler closed", h.folderID)
	return true
}

// closedSignal is closed once the handler has fully drained
func (h *Handler) closedSignal() <-chan types.Unit {
	return h.done
}
