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

package persistence

import (
	"context"
	"sync"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/revision"
)

// MemoryStore keeps every folder revision in memory
type MemoryStore struct {
	mu    sync.Mutex
	cache map[string]map[int64]*revision.Revision
}

var _ Persistence = &MemoryStore{}

// NewMemoryStore creates a new instance of MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:    sync.Mutex{},
		cache: map[string]map[int64]*revision.Revision{},
	}
}

// ReadFolder returns the record composed from the stored revisions
func (s *MemoryStore) ReadFolder(_ context.Context, _, folderID string) (*FolderRecord, error) {
	s.mu.Lock()
	items, ok := s.cache[folderID]
	if !ok {
		s.mu.Unlock()
		return nil, gerrors.NewErrFolderNotFound(folderID)
	}
	revisions := sorted(items)
	s.mu.Unlock()

	return NewFolderRecord(folderID, revisions)
}

// CreateFolder stores the bootstrap revisions of a new folder
func (s *MemoryStore) CreateFolder(_ context.Context, _, folderID string, revisions []*revision.Revision) (*FolderRecord, error) {
	record, err := NewFolderRecord(folderID, revisions)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[folderID]; ok {
		return nil, nil
	}

	items := make(map[int64]*revision.Revision, len(revisions))
	for _, rev := range revisions {
		items[rev.RevID] = clone(rev)
	}
	s.cache[folderID] = items
	return record, nil
}

// SaveFolderRevisions persists revisions, grouping them per folder
func (s *MemoryStore) SaveFolderRevisions(_ context.Context, revisions []*revision.Revision) error {
	s.mu.Lock()
	for _, rev := range revisions {
		items, ok := s.cache[rev.ObjectID]
		if !ok {
			items = make(map[int64]*revision.Revision)
			s.cache[rev.ObjectID] = items
		}
		items[rev.RevID] = clone(rev)
	}
	s.mu.Unlock()
	return nil
}

// ReadFolderRevisions fetches the given revisions of a folder ordered by RevID
func (s *MemoryStore) ReadFolderRevisions(_ context.Context, folderID string, revIDs []int64) ([]*revision.Revision, error) {
	s.mu.Lock()
	items := s.cache[folderID]

	// short circuit when there are no items
	if len(items) == 0 {
		s.mu.Unlock()
		return nil, nil
	}

	revisions := FilterRevisions(sorted(items), revIDs)
	s.mu.Unlock()
	return revisions, nil
}

// Len returns the number of stored folders
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

func sorted(items map[int64]*revision.Revision) []*revision.Revision {
	revisions := make([]*revision.Revision, 0, len(items))
	for _, rev := range items {
		revisions = append(revisions, clone(rev))
	}
	revision.Sort(revisions)
	return revisions
}

func clone(rev *revision.Revision) *revision.Revision {
	cp := *rev
	cp.Bytes = append([]byte(nil), rev.Bytes...)
	return &cp
}
