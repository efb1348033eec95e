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

// Package storetest holds the behaviour every persistence.Persistence
// implementation must exhibit, packaged as a testify suite.
package storetest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/suite"

	"github.com/tochemey/foldersync/delta"
	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

// Suite exercises a persistence.Persistence. NewStore is called before
// every test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() persistence.Persistence

	store persistence.Persistence
}

// SetupTest creates a fresh store
func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore)
	s.store = s.NewStore()
}

// Insert builds a revision inserting text at the given position
func Insert(folderID string, baseRevID, revID int64, pos int, text string) *revision.Revision {
	return revision.New(folderID, baseRevID, revID, "user", delta.MustMarshal(delta.New().Retain(pos).Insert(text)))
}

func (s *Suite) TestReadFolder() {
	s.Run("with unknown folder", func() {
		record, err := s.store.ReadFolder(context.TODO(), "user", "missing")
		s.Require().Error(err)
		s.Assert().ErrorIs(err, gerrors.ErrFolderNotFound)
		s.Assert().Nil(record)
	})
	s.Run("with composed revisions", func() {
		ctx := context.TODO()
		record, err := s.store.CreateFolder(ctx, "user", "read", []*revision.Revision{Insert("read", 0, 1, 0, "abc")})
		s.Require().NoError(err)
		s.Require().NotNil(record)

		err = s.store.SaveFolderRevisions(ctx, []*revision.Revision{
			Insert("read", 2, 3, 4, "!"),
			Insert("read", 1, 2, 3, "d"),
		})
		s.Require().NoError(err)

		record, err = s.store.ReadFolder(ctx, "user", "read")
		s.Require().NoError(err)
		s.Assert().EqualValues(3, record.RevID)
		s.Assert().EqualValues(2, record.BaseRevID)

		doc, err := delta.FromBytes(record.Text)
		s.Require().NoError(err)
		s.Assert().Equal("abcd!", doc.Text())
	})
}

func (s *Suite) TestCreateFolder() {
	s.Run("with new folder", func() {
		record, err := s.store.CreateFolder(context.TODO(), "user", "create", []*revision.Revision{Insert("create", 0, 1, 0, "hello")})
		s.Require().NoError(err)
		s.Require().NotNil(record)
		s.Assert().Equal("create", record.FolderID)
		s.Assert().EqualValues(1, record.RevID)

		doc, err := delta.FromBytes(record.Text)
		s.Require().NoError(err)
		s.Assert().Equal("hello", doc.Text())
	})
	s.Run("with existing folder", func() {
		ctx := context.TODO()
		_, err := s.store.CreateFolder(ctx, "user", "twice", []*revision.Revision{Insert("twice", 0, 1, 0, "a")})
		s.Require().NoError(err)

		record, err := s.store.CreateFolder(ctx, "user", "twice", []*revision.Revision{Insert("twice", 0, 1, 0, "b")})
		s.Require().NoError(err)
		s.Assert().Nil(record)

		record, err = s.store.ReadFolder(ctx, "user", "twice")
		s.Require().NoError(err)
		doc, err := delta.FromBytes(record.Text)
		s.Require().NoError(err)
		s.Assert().Equal("a", doc.Text())
	})
	s.Run("with concurrent creators only one wins", func() {
		ctx := context.TODO()
		const creators = 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < creators; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				record, err := s.store.CreateFolder(ctx, "user", "race", []*revision.Revision{Insert("race", 0, 1, 0, "x")})
				s.Assert().NoError(err)
				if record != nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		s.Assert().Equal(1, wins)
	})
	s.Run("with empty bootstrap", func() {
		record, err := s.store.CreateFolder(context.TODO(), "user", "empty", nil)
		s.Require().NoError(err)
		s.Require().NotNil(record)
		s.Assert().Zero(record.RevID)

		doc, err := delta.FromBytes(record.Text)
		s.Require().NoError(err)
		s.Assert().Empty(doc.Text())
	})
	s.Run("with corrupted revision", func() {
		rev := Insert("corrupt", 0, 1, 0, "a")
		rev.Checksum = "bad"
		record, err := s.store.CreateFolder(context.TODO(), "user", "corrupt", []*revision.Revision{rev})
		s.Require().Error(err)
		s.Assert().ErrorIs(err, gerrors.ErrInvalidFolderData)
		s.Assert().Nil(record)
	})
}

func (s *Suite) TestReadFolderRevisions() {
	ctx := context.TODO()
	revisions := []*revision.Revision{
		Insert("revs", 0, 1, 0, "a"),
		Insert("revs", 1, 2, 1, "b"),
		Insert("revs", 2, 3, 2, "c"),
	}
	s.Require().NoError(s.store.SaveFolderRevisions(ctx, revisions))

	s.Run("with nil ids returns everything", func() {
		actual, err := s.store.ReadFolderRevisions(ctx, "revs", nil)
		s.Require().NoError(err)
		s.Require().Len(actual, 3)
		for i, rev := range actual {
			s.Assert().EqualValues(i+1, rev.RevID)
			s.Assert().NoError(rev.Verify())
		}
	})
	s.Run("with a subset", func() {
		actual, err := s.store.ReadFolderRevisions(ctx, "revs", []int64{3, 1, 9})
		s.Require().NoError(err)
		s.Require().Len(actual, 2)
		s.Assert().EqualValues(1, actual[0].RevID)
		s.Assert().EqualValues(3, actual[1].RevID)
	})
	s.Run("with unknown folder", func() {
		actual, err := s.store.ReadFolderRevisions(ctx, "nope", nil)
		s.Require().NoError(err)
		s.Assert().Empty(actual)
	})
	s.Run("with an overwritten revision", func() {
		replacement := Insert("revs", 1, 2, 1, "z")
		s.Require().NoError(s.store.SaveFolderRevisions(ctx, []*revision.Revision{replacement}))

		actual, err := s.store.ReadFolderRevisions(ctx, "revs", []int64{2})
		s.Require().NoError(err)
		s.Require().Len(actual, 1)
		s.Assert().Equal(replacement.Checksum, actual[0].Checksum)
	})
}
