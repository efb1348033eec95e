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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/foldersync/errors"
	imetric "github.com/tochemey/foldersync/internal/metric"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

func newTestHandler(t *testing.T, factory SynchronizerFactory, capacity int) *Handler {
	t.Helper()
	store := persistence.NewMemoryStore()
	record, err := store.CreateFolder(context.TODO(), "u1", "f1", []*revision.Revision{insertRev("f1", 0, 1, "seed")})
	require.NoError(t, err)

	folderMetric, err := imetric.NewFolderMetric(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	handler, err := newHandler(record, store, &handlerConfig{
		queueCapacity: capacity,
		logger:        log.DiscardLogger,
		factory:       factory,
		metric:        folderMetric,
	})
	require.NoError(t, err)
	t.Cleanup(func() { handler.close() })
	return handler
}

func TestHandler(t *testing.T) {
	t.Run("With commands applied in acceptance order", func(t *testing.T) {
		factory := newStubFactory()
		handler := newTestHandler(t, factory.factory(), DefaultQueueCapacity)
		user := newRecordingUser("u1")

		const (
			senders  = 4
			commands = 50
		)

		var wg sync.WaitGroup
		errs := make(chan error, senders*commands)
		for sender := 0; sender < senders; sender++ {
			wg.Add(1)
			go func(sender int) {
				defer wg.Done()
				// enqueue everything first, then wait for every outcome
				replies := make([]*reply, 0, commands)
				for i := 0; i < commands; i++ {
					revID := int64(sender*1000 + i)
					cmd := newApplyRevisions(context.TODO(), user, []*revision.Revision{insertRev("f1", revID-1, revID, "x")})
					if err := handler.enqueue(context.TODO(), cmd); err != nil {
						errs <- err
						return
					}
					replies = append(replies, cmd.reply)
				}
				for _, r := range replies {
					errs <- r.await(context.TODO())
				}
			}(sender)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		synchronizer := factory.latest("f1")
		applied := synchronizer.appliedRevIDs()
		require.Len(t, applied, senders*commands)
		assert.False(t, synchronizer.overlap.Load())

		// each sender's commands keep their relative order
		last := make(map[int64]int64)
		for _, revID := range applied {
			sender := revID / 1000
			if previous, ok := last[sender]; ok {
				assert.Greater(t, revID, previous)
			}
			last[sender] = revID
		}
	})
	t.Run("With full queue blocking senders", func(t *testing.T) {
		release := make(chan struct{})
		factory := newStubFactory()
		factory.onSync = func(string, []*revision.Revision) error {
			<-release
			return nil
		}
		handler := newTestHandler(t, factory.factory(), 2)
		user := newRecordingUser("u1")

		first := newApplyRevisions(context.TODO(), user, nil)
		require.NoError(t, handler.enqueue(context.TODO(), first))
		require.Eventually(t, func() bool {
			synchronizer := factory.latest("f1")
			return synchronizer.active.Load() == 1
		}, time.Second, time.Millisecond)

		second := newApplyRevisions(context.TODO(), user, nil)
		third := newApplyRevisions(context.TODO(), user, nil)
		require.NoError(t, handler.enqueue(context.TODO(), second))
		require.NoError(t, handler.enqueue(context.TODO(), third))

		ctx, cancel := context.WithTimeout(context.TODO(), 20*time.Millisecond)
		defer cancel()
		err := handler.enqueue(ctx, newApplyRevisions(ctx, user, nil))
		require.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		for _, cmd := range []*command{first, second, third} {
			require.NoError(t, cmd.reply.await(context.TODO()))
		}
	})
	t.Run("With caller abandoning the reply", func(t *testing.T) {
		release := make(chan struct{})
		factory := newStubFactory()
		factory.onSync = func(string, []*revision.Revision) error {
			<-release
			return nil
		}
		handler := newTestHandler(t, factory.factory(), DefaultQueueCapacity)

		ctx, cancel := context.WithTimeout(context.TODO(), 20*time.Millisecond)
		defer cancel()
		err := handler.ApplyRevisions(ctx, newRecordingUser("u1"), []*revision.Revision{insertRev("f1", 1, 2, "x")})
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// the accepted command still runs
		close(release)
		require.Eventually(t, func() bool {
			return len(factory.latest("f1").appliedRevIDs()) == 1
		}, time.Second, time.Millisecond)
	})
	t.Run("With panicking synchronizer", func(t *testing.T) {
		panicking := atomic.NewBool(true)
		factory := newStubFactory()
		factory.onSync = func(string, []*revision.Revision) error {
			if panicking.Load() {
				panic("boom")
			}
			return nil
		}
		handler := newTestHandler(t, factory.factory(), DefaultQueueCapacity)
		user := newRecordingUser("u1")

		err := handler.ApplyRevisions(context.TODO(), user, nil)
		require.ErrorIs(t, err, gerrors.ErrSynchronization)
		var panicErr *gerrors.PanicError
		require.True(t, errors.As(err, &panicErr))
		assert.ErrorContains(t, err, "boom")

		// the folder keeps serving commands
		panicking.Store(false)
		require.NoError(t, handler.ApplyRevisions(context.TODO(), user, nil))
	})
	t.Run("With unknown command dropped", func(t *testing.T) {
		handler := newTestHandler(t, newStubFactory().factory(), DefaultQueueCapacity)
		cmd := &command{
			id:    "unknown",
			kind:  commandKind(42),
			ctx:   context.TODO(),
			reply: newReply(),
		}

		err := handler.send(context.TODO(), cmd)
		require.ErrorIs(t, err, gerrors.ErrReplyDropped)
		assert.True(t, gerrors.IsRoutingFailure(err))
	})
	t.Run("With close draining accepted commands", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		release := make(chan struct{})
		factory := newStubFactory()
		factory.onPong = func(string, int64) error {
			<-release
			return nil
		}

		store := persistence.NewMemoryStore()
		record, err := store.CreateFolder(context.TODO(), "u1", "f1", []*revision.Revision{insertRev("f1", 0, 1, "seed")})
		require.NoError(t, err)
		folderMetric, err := imetric.NewFolderMetric(noop.NewMeterProvider().Meter("test"))
		require.NoError(t, err)
		handler, err := newHandler(record, store, &handlerConfig{
			queueCapacity: DefaultQueueCapacity,
			logger:        log.DiscardLogger,
			factory:       factory.factory(),
			metric:        folderMetric,
		})
		require.NoError(t, err)

		user := newRecordingUser("u1")
		pending := make([]*command, 0, 3)
		for revID := int64(1); revID <= 3; revID++ {
			cmd := newPing(context.TODO(), user, revID)
			require.NoError(t, handler.enqueue(context.TODO(), cmd))
			pending = append(pending, cmd)
		}

		closed := make(chan bool, 1)
		go func() { closed <- handler.close() }()

		// close waits for the accepted commands
		select {
		case <-closed:
			t.Fatal("handler closed before draining")
		case <-time.After(20 * time.Millisecond):
		}

		close(release)
		require.True(t, <-closed)
		for _, cmd := range pending {
			require.NoError(t, cmd.reply.await(context.TODO()))
		}
		assert.Equal(t, []int64{1, 2, 3}, factory.latest("f1").pingRevIDs())

		assert.True(t, handler.IsClosed())
		assert.False(t, handler.close())
		select {
		case <-handler.closedSignal():
		default:
			t.Fatal("closed signal not fired")
		}

		err = handler.Ping(context.TODO(), user, 4)
		require.ErrorIs(t, err, gerrors.ErrHandlerClosed)
		assert.EqualValues(t, idle, handler.runner.processing.Load())
	})
	t.Run("With activity tracked", func(t *testing.T) {
		handler := newTestHandler(t, newStubFactory().factory(), DefaultQueueCapacity)
		opened := handler.LastActivity()
		time.Sleep(5 * time.Millisecond)

		require.NoError(t, handler.Ping(context.TODO(), newRecordingUser("u1"), 1))
		assert.True(t, handler.LastActivity().After(opened))
	})
	t.Run("With rev id", func(t *testing.T) {
		stub := newTestHandler(t, newStubFactory().factory(), DefaultQueueCapacity)
		assert.EqualValues(t, -1, stub.RevID())

		handler := newTestHandler(t, defaultSynchronizerFactory, DefaultQueueCapacity)
		assert.EqualValues(t, 1, handler.RevID())
		assert.Equal(t, "f1", handler.ID())
	})
	t.Run("With invalid folder data", func(t *testing.T) {
		record := &persistence.FolderRecord{FolderID: "f1", Text: []byte("not a delta"), RevID: 1}
		_, err := newHandler(record, persistence.NewMemoryStore(), &handlerConfig{
			logger:  log.DiscardLogger,
			factory: newStubFactory().factory(),
		})
		require.ErrorIs(t, err, gerrors.ErrInvalidFolderData)
	})
}

func TestReply(t *testing.T) {
	t.Run("With outcome delivered once", func(t *testing.T) {
		r := newReply()
		r.fulfill(nil)
		r.fulfill(errors.New("ignored"))
		r.release()
		require.NoError(t, r.await(context.TODO()))
	})
	t.Run("With released reply", func(t *testing.T) {
		r := newReply()
		r.release()
		require.ErrorIs(t, r.await(context.TODO()), gerrors.ErrReplyDropped)
	})
	t.Run("With abandoned reply", func(t *testing.T) {
		r := newReply()
		ctx, cancel := context.WithCancel(context.TODO())
		cancel()
		require.ErrorIs(t, r.await(ctx), context.Canceled)
		// completing an abandoned reply never blocks
		r.fulfill(errors.New("late"))
	})
}

func TestCommandKind(t *testing.T) {
	assert.Equal(t, "apply_revisions", applyRevisionsCommand.String())
	assert.Equal(t, "ping", pingCommand.String())
	assert.Equal(t, "unknown", commandKind(42).String())
}
