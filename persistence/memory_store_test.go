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

package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/persistence/storetest"
	"github.com/tochemey/foldersync/revision"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func() persistence.Persistence { return persistence.NewMemoryStore() },
	})
}

func TestNewMemoryStore(t *testing.T) {
	store := persistence.NewMemoryStore()
	assert.NotNil(t, store)
	var p any = store
	_, ok := p.(persistence.Persistence)
	assert.True(t, ok)
	assert.Zero(t, store.Len())
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.TODO()
	store := persistence.NewMemoryStore()
	rev := storetest.Insert("F1", 0, 1, 0, "abc")
	require.NoError(t, store.SaveFolderRevisions(ctx, []*revision.Revision{rev}))

	// mutating the caller's copy must not leak into the store
	rev.Bytes[0] = 'X'

	actual, err := store.ReadFolderRevisions(ctx, "F1", nil)
	require.NoError(t, err)
	require.Len(t, actual, 1)
	assert.NoError(t, actual[0].Verify())
	assert.Equal(t, 1, store.Len())
}

func TestNewFolderRecord(t *testing.T) {
	t.Run("out of order revisions are sorted", func(t *testing.T) {
		record, err := persistence.NewFolderRecord("F1", []*revision.Revision{
			storetest.Insert("F1", 1, 2, 1, "b"),
			storetest.Insert("F1", 0, 1, 0, "a"),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, record.RevID)
		assert.JSONEq(t, `[{"insert":"ab"}]`, string(record.Text))
	})
	t.Run("malformed payload", func(t *testing.T) {
		rev := revision.New("F1", 0, 1, "u", []byte("{"))
		_, err := persistence.NewFolderRecord("F1", []*revision.Revision{rev})
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrInvalidFolderData)
	})
	t.Run("filter keeps the requested ids", func(t *testing.T) {
		revisions := []*revision.Revision{
			storetest.Insert("F1", 0, 1, 0, "a"),
			storetest.Insert("F1", 1, 2, 1, "b"),
		}
		assert.Len(t, persistence.FilterRevisions(revisions, nil), 2)
		assert.Len(t, persistence.FilterRevisions(revisions, []int64{2}), 1)
		assert.Empty(t, persistence.FilterRevisions(revisions, []int64{}))

		// duplicated and unknown ids select each stored revision once
		actual := persistence.FilterRevisions(revisions, []int64{2, 2, 9})
		require.Len(t, actual, 1)
		assert.EqualValues(t, 2, actual[0].RevID)
	})
}
