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
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/internal/metric"
	"github.com/tochemey/foldersync/log"
)

const (
	idle int32 = iota
	busy
)

var errUnknownCommand = errors.New("unknown command kind")

// commandRunner is the sole consumer of a folder queue. It drains commands
// one at a time, each one completed (Synchronizer call and reply) before the
// next one starts. No goroutine is parked while the queue is empty: a drain
// loop is started on demand and exits once the queue is empty.
type commandRunner struct {
	folderID     string
	queue        *queue.RingBuffer
	slots        *semaphore.Weighted
	synchronizer Synchronizer
	processing   *atomic.Int32
	wg           sync.WaitGroup
	logger       log.Logger
	metric       *metric.FolderMetric
	onProcessed  func()
}

// process starts a drain loop unless one is already running
func (r *commandRunner) process() {
	// Only start a processing loop when transitioning from idle -> busy.
	if !r.processing.CompareAndSwap(idle, busy) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			for r.queue.Len() > 0 {
				item, err := r.queue.Get()
				if err != nil {
					r.processing.Store(idle)
					return
				}
				r.slots.Release(1)
				r.handle(item.(*command))
			}

			// if no more commands, change busy state to idle
			r.processing.Store(idle)

			// check if new commands were added in the meantime and restart processing
			if r.queue.Len() == 0 || !r.processing.CompareAndSwap(idle, busy) {
				return
			}
		}
	}()
}

// wait blocks until the running drain loop, if any, exits
func (r *commandRunner) wait() {
	r.wg.Wait()
}

func (r *commandRunner) handle(cmd *command) {
	start := time.Now()
	err := r.execute(cmd)
	if errors.Is(err, errUnknownCommand) {
		r.logger.Errorf("folder %s dropped command %s: %v", r.folderID, cmd.id, err)
		r.onProcessed()
		cmd.reply.release()
		return
	}

	r.metric.CommandProcessed(cmd.ctx, cmd.kind.String(), time.Since(start), err)
	if err != nil {
		r.logger.Warnf("folder %s command %s (%s) failed: %v", r.folderID, cmd.id, cmd.kind, err)
	}

	// activity is recorded before the caller is released
	r.onProcessed()
	cmd.reply.fulfill(err)
}

// execute runs the command against the Synchronizer. Every failure, panics
// included, is reported as a synchronization error.
func (r *commandRunner) execute(cmd *command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = gerrors.NewErrSynchronization(recovered(rec))
		}
	}()

	switch cmd.kind {
	case applyRevisionsCommand:
		err = r.synchronizer.SyncRevisions(cmd.ctx, cmd.user, cmd.revisions)
	case pingCommand:
		err = r.synchronizer.Pong(cmd.ctx, cmd.user, cmd.revID)
	default:
		return fmt.Errorf("%w: %d", errUnknownCommand, cmd.kind)
	}

	if err != nil {
		return gerrors.NewErrSynchronization(err)
	}
	return nil
}

// recovered turns a recovered panic value into a PanicError enriched with the
// panicking call site.
func recovered(rec any) error {
	pc, fn, line, _ := runtime.Caller(3)
	if err, ok := rec.(error); ok {
		var pe *gerrors.PanicError
		if errors.As(err, &pe) {
			return pe
		}
		return gerrors.NewPanicError(fmt.Errorf("%w at %s[%s:%d]", err, runtime.FuncForPC(pc).Name(), fn, line))
	}
	return gerrors.NewPanicError(fmt.Errorf("%#v at %s[%s:%d]", rec, runtime.FuncForPC(pc).Name(), fn, line))
}
