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

package revsync

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/foldersync/delta"
	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

type recordingUser struct {
	mu       sync.Mutex
	messages []*message.ServerRevisionMessage
}

func (u *recordingUser) UserID() string { return "recorder" }

func (u *recordingUser) Receive(msg *message.ServerRevisionMessage) {
	u.mu.Lock()
	u.messages = append(u.messages, msg)
	u.mu.Unlock()
}

func (u *recordingUser) received() []*message.ServerRevisionMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*message.ServerRevisionMessage(nil), u.messages...)
}

type failingStore struct {
	persistence.Persistence
	err error
}

func (f *failingStore) SaveFolderRevisions(context.Context, []*revision.Revision) error {
	return f.err
}

func insert(baseRevID, revID int64, pos int, text string) *revision.Revision {
	return revision.New("F1", baseRevID, revID, "u1", delta.MustMarshal(delta.New().Retain(pos).Insert(text)))
}

// newSynchronizer creates folder F1 holding "abc" at revision 1
func newSynchronizer(t *testing.T, store persistence.Persistence) *Synchronizer {
	t.Helper()
	record, err := store.CreateFolder(context.TODO(), "u1", "F1", []*revision.Revision{insert(0, 1, 0, "abc")})
	require.NoError(t, err)
	require.NotNil(t, record)

	doc, err := delta.FromBytes(record.Text)
	require.NoError(t, err)
	return New("F1", record.RevID, doc, store, WithLogger(log.DiscardLogger))
}

func TestSyncRevisions(t *testing.T) {
	t.Run("composes the next revision", func(t *testing.T) {
		ctx := context.TODO()
		store := persistence.NewMemoryStore()
		synchronizer := newSynchronizer(t, store)
		user := new(recordingUser)

		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(1, 2, 3, "d")}))
		assert.EqualValues(t, 2, synchronizer.RevID())
		assert.Equal(t, "abcd", synchronizer.Text())
		assert.Empty(t, user.received())

		stored, err := store.ReadFolderRevisions(ctx, "F1", nil)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})
	t.Run("composes an unordered batch in rev id order", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())

		err := synchronizer.SyncRevisions(ctx, new(recordingUser), []*revision.Revision{
			insert(2, 3, 4, "e"),
			insert(1, 2, 3, "d"),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, synchronizer.RevID())
		assert.Equal(t, "abcde", synchronizer.Text())
	})
	t.Run("ignores a revision applied before", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		rev := insert(1, 2, 3, "d")

		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{rev}))
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{rev}))
		assert.Equal(t, "abcd", synchronizer.Text())
		assert.Empty(t, user.received())
	})
	t.Run("pulls the missing range when the server is behind", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)

		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(4, 5, 0, "x")}))
		assert.EqualValues(t, 1, synchronizer.RevID())

		received := user.received()
		require.Len(t, received, 1)
		assert.Equal(t, message.Pull, received[0].Kind)
		assert.Equal(t, revision.Range{Start: 2, End: 5}, *received[0].Range)
	})
	t.Run("pushes the server revisions when the client is behind", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(1, 2, 3, "d")}))

		// a conflicting revision 1 from another client
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(0, 1, 0, "zzz")}))

		received := user.received()
		require.Len(t, received, 1)
		assert.Equal(t, message.Push, received[0].Kind)
		require.Len(t, received[0].Revisions, 2)
		assert.EqualValues(t, 1, received[0].Revisions[0].RevID)
		assert.EqualValues(t, 2, received[0].Revisions[1].RevID)
		assert.Equal(t, "abcd", synchronizer.Text())
	})
	t.Run("empty batch pushes every revision", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)

		require.NoError(t, synchronizer.SyncRevisions(ctx, user, nil))
		received := user.received()
		require.Len(t, received, 1)
		assert.Equal(t, message.Push, received[0].Kind)
		assert.Len(t, received[0].Revisions, 1)
	})
	t.Run("rejects a checksum mismatch", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		rev := insert(1, 2, 3, "d")
		rev.Checksum = "0000000000000000"

		err := synchronizer.SyncRevisions(ctx, new(recordingUser), []*revision.Revision{rev})
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrInvalidRevision)
		assert.EqualValues(t, 1, synchronizer.RevID())
	})
	t.Run("rejects a delta that does not fit and keeps the state", func(t *testing.T) {
		ctx := context.TODO()
		store := persistence.NewMemoryStore()
		synchronizer := newSynchronizer(t, store)
		bad := revision.New("F1", 1, 2, "u1", delta.MustMarshal(delta.New().Retain(10).Insert("x")))

		err := synchronizer.SyncRevisions(ctx, new(recordingUser), []*revision.Revision{bad})
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrInvalidRevision)
		assert.Equal(t, "abc", synchronizer.Text())

		stored, err := store.ReadFolderRevisions(ctx, "F1", nil)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})
	t.Run("keeps the state when saving fails", func(t *testing.T) {
		ctx := context.TODO()
		saveErr := errors.New("disk full")
		store := &failingStore{Persistence: persistence.NewMemoryStore(), err: saveErr}
		synchronizer := newSynchronizer(t, store)

		err := synchronizer.SyncRevisions(ctx, new(recordingUser), []*revision.Revision{insert(1, 2, 3, "d")})
		require.ErrorIs(t, err, saveErr)
		assert.EqualValues(t, 1, synchronizer.RevID())
		assert.Equal(t, "abc", synchronizer.Text())
	})
}

func TestPong(t *testing.T) {
	t.Run("pushes when the server is ahead", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(1, 2, 3, "d")}))
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(2, 3, 4, "e")}))

		require.NoError(t, synchronizer.Pong(ctx, user, 2))
		received := user.received()
		require.Len(t, received, 1)
		assert.Equal(t, message.Push, received[0].Kind)
		require.Len(t, received[0].Revisions, 2)
		assert.EqualValues(t, 2, received[0].Revisions[0].RevID)
		assert.EqualValues(t, 3, received[0].Revisions[1].RevID)
	})
	t.Run("does nothing when up to date", func(t *testing.T) {
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		require.NoError(t, synchronizer.Pong(context.TODO(), user, 1))
		assert.Empty(t, user.received())
	})
	t.Run("pushes from the first revision for a negative client rev id", func(t *testing.T) {
		ctx := context.TODO()
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		require.NoError(t, synchronizer.SyncRevisions(ctx, user, []*revision.Revision{insert(1, 2, 3, "d")}))

		for _, clientRevID := range []int64{-1, -1_000_000_000, math.MinInt64} {
			require.NoError(t, synchronizer.Pong(ctx, user, clientRevID))
		}

		received := user.received()
		require.Len(t, received, 3)
		for _, msg := range received {
			assert.Equal(t, message.Push, msg.Kind)
			require.Len(t, msg.Revisions, 2)
			assert.EqualValues(t, 1, msg.Revisions[0].RevID)
			assert.EqualValues(t, 2, msg.Revisions[1].RevID)
		}
	})
	t.Run("does nothing when the client is ahead", func(t *testing.T) {
		synchronizer := newSynchronizer(t, persistence.NewMemoryStore())
		user := new(recordingUser)
		require.NoError(t, synchronizer.Pong(context.TODO(), user, 9))
		assert.Empty(t, user.received())
	})
}
