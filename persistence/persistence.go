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

// Package persistence defines the durable storage contract of folders and
// ships an in-memory implementation. Durable stores live in sub-packages.
package persistence

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/foldersync/delta"
	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/revision"
)

// Persistence is the storage contract the folder manager and the
// synchronizers rely on. Implementations must be safe for concurrent use.
type Persistence interface {
	// ReadFolder returns the current record of a folder.
	//
	// Returns ErrFolderNotFound when the folder has no durable record.
	//
	// Example:
	//   record, err := store.ReadFolder(ctx, userID, folderID)
	//   if errors.Is(err, gerrors.ErrFolderNotFound) {
	//       // the folder has never been created
	//   }
	ReadFolder(ctx context.Context, userID, folderID string) (*FolderRecord, error)

	// CreateFolder creates a folder from its bootstrap revisions and returns
	// the resulting record.
	//
	// A nil record with a nil error means the folder already exists and
	// nothing was written.
	CreateFolder(ctx context.Context, userID, folderID string, revisions []*revision.Revision) (*FolderRecord, error)

	// SaveFolderRevisions appends revisions. A revision with an already stored
	// RevID replaces the stored one.
	SaveFolderRevisions(ctx context.Context, revisions []*revision.Revision) error

	// ReadFolderRevisions returns the requested revisions of a folder ordered
	// by RevID. A nil revIDs returns every stored revision. Missing ids are
	// skipped.
	ReadFolderRevisions(ctx context.Context, folderID string, revIDs []int64) ([]*revision.Revision, error)
}

// FolderRecord is the durable state of a folder as loaded at activation.
// Text is the snapshot wire form of the folder document.
type FolderRecord struct {
	FolderID  string
	Text      []byte
	RevID     int64
	BaseRevID int64
}

// NewFolderRecord composes the given revisions, in RevID order, into a
// FolderRecord. Revisions with a wrong checksum or a malformed payload fail
// the whole composition.
func NewFolderRecord(folderID string, revisions []*revision.Revision) (*FolderRecord, error) {
	ordered := make([]*revision.Revision, len(revisions))
	copy(ordered, revisions)
	revision.Sort(ordered)

	doc := delta.NewDocument("")
	record := &FolderRecord{FolderID: folderID}
	for _, rev := range ordered {
		if err := rev.Verify(); err != nil {
			return nil, gerrors.NewErrInvalidFolderData(folderID, err)
		}

		if err := doc.ApplyBytes(rev.Bytes); err != nil {
			return nil, gerrors.NewErrInvalidFolderData(folderID, err)
		}

		record.RevID = rev.RevID
		record.BaseRevID = rev.BaseRevID
	}

	text, err := doc.Bytes()
	if err != nil {
		return nil, gerrors.NewErrInvalidFolderData(folderID, err)
	}

	record.Text = text
	return record, nil
}

// FilterRevisions keeps the revisions whose RevID is in revIDs, preserving
// order. A nil revIDs keeps everything.
func FilterRevisions(revisions []*revision.Revision, revIDs []int64) []*revision.Revision {
	if revIDs == nil {
		return revisions
	}

	wanted := mapset.NewThreadUnsafeSet(revIDs...)
	out := make([]*revision.Revision, 0, min(len(revIDs), len(revisions)))
	for _, rev := range revisions {
		if wanted.Contains(rev.RevID) {
			out = append(out, rev)
		}
	}
	return out
}
