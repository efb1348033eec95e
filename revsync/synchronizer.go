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

// Package revsync implements the revision synchronization protocol between
// the server copy of a folder and its clients.
//
// The server keeps the id of the last revision it composed. A client batch
// is composed when it directly follows that id, otherwise the server asks the
// client for the gap (Pull) or sends the client what it lacks (Push).
package revsync

import (
	"context"

	"go.uber.org/atomic"

	"github.com/tochemey/foldersync/delta"
	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

// Synchronizer reconciles client revisions with the server copy of one
// folder. SyncRevisions and Pong must not be called concurrently; RevID and
// Text may be read from any goroutine.
type Synchronizer struct {
	folderID    string
	revID       *atomic.Int64
	document    *delta.Document
	text        *atomic.String
	persistence persistence.Persistence
	logger      log.Logger
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// New creates a Synchronizer for a folder whose last composed revision is revID
func New(folderID string, revID int64, document *delta.Document, persistence persistence.Persistence, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		folderID:    folderID,
		revID:       atomic.NewInt64(revID),
		document:    document,
		text:        atomic.NewString(document.Text()),
		persistence: persistence,
		logger:      log.DiscardLogger,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RevID returns the id of the last composed revision
func (s *Synchronizer) RevID() int64 {
	return s.revID.Load()
}

// Text returns the current folder content
func (s *Synchronizer) Text() string {
	return s.text.Load()
}

// SyncRevisions reconciles a batch of client revisions.
//
// An empty batch means the client wants everything and gets a Push of all
// stored revisions.
func (s *Synchronizer) SyncRevisions(ctx context.Context, user message.User, revisions []*revision.Revision) error {
	if len(revisions) == 0 {
		return s.pushAll(ctx, user)
	}

	ordered := make([]*revision.Revision, len(revisions))
	copy(ordered, revisions)
	revision.Sort(ordered)

	for _, rev := range ordered {
		if err := rev.Verify(); err != nil {
			return err
		}
	}

	first := ordered[0]
	applied, err := s.isAppliedBefore(ctx, first)
	if err != nil {
		return err
	}

	if applied {
		s.logger.Debugf("revision %s already applied, ignoring", first)
		return nil
	}

	serverRevID := s.revID.Load()
	switch {
	case serverRevID < first.RevID:
		if serverRevID == first.BaseRevID || serverRevID+1 == first.RevID {
			return s.compose(ctx, ordered)
		}

		rng := revision.Range{Start: serverRevID + 1, End: first.RevID}
		s.logger.Debugf("folder %s is behind, pulling revisions [%d, %d] from user %s", s.folderID, rng.Start, rng.End, user.UserID())
		user.Receive(message.NewPull(s.folderID, rng))
	case serverRevID == first.RevID:
	default:
		return s.push(ctx, user, revision.Range{Start: first.RevID, End: serverRevID})
	}
	return nil
}

// Pong answers a client ping announcing the client's last revision id.
// The client receives a Push when the server is ahead.
func (s *Synchronizer) Pong(ctx context.Context, user message.User, clientRevID int64) error {
	serverRevID := s.revID.Load()
	switch {
	case serverRevID < clientRevID:
		s.logger.Warnf("user %s is ahead of folder %s (client=%d server=%d)", user.UserID(), s.folderID, clientRevID, serverRevID)
	case serverRevID == clientRevID:
	default:
		return s.push(ctx, user, revision.Range{Start: clientRevID, End: serverRevID})
	}
	return nil
}

// compose applies the revisions on a copy of the document, persists them,
// then publishes the new state. Nothing changes when any step fails.
func (s *Synchronizer) compose(ctx context.Context, revisions []*revision.Revision) error {
	next := s.document.Clone()
	for _, rev := range revisions {
		if err := next.ApplyBytes(rev.Bytes); err != nil {
			return gerrors.NewErrInvalidRevision(rev.RevID, err.Error())
		}
	}

	if err := s.persistence.SaveFolderRevisions(ctx, revisions); err != nil {
		return err
	}

	last := revisions[len(revisions)-1]
	s.document = next
	s.text.Store(next.Text())
	s.revID.Store(last.RevID)
	s.logger.Debugf("folder %s composed revisions up to %d", s.folderID, last.RevID)
	return nil
}

func (s *Synchronizer) isAppliedBefore(ctx context.Context, rev *revision.Revision) (bool, error) {
	stored, err := s.persistence.ReadFolderRevisions(ctx, s.folderID, []int64{rev.RevID})
	if err != nil {
		return false, err
	}

	for _, candidate := range stored {
		if candidate.RevID == rev.RevID && candidate.Checksum == rev.Checksum {
			return true, nil
		}
	}
	return false, nil
}

// push sends the stored revisions of the range. Client supplied bounds
// below the first revision are clamped.
func (s *Synchronizer) push(ctx context.Context, user message.User, rng revision.Range) error {
	rng = rng.From(revision.FirstRevID)
	revisions, err := s.persistence.ReadFolderRevisions(ctx, s.folderID, rng.RevIDs())
	if err != nil {
		return err
	}

	if len(revisions) == 0 {
		s.logger.Warnf("folder %s has no revisions in [%d, %d]", s.folderID, rng.Start, rng.End)
		return nil
	}

	user.Receive(message.NewPush(s.folderID, revisions))
	return nil
}

func (s *Synchronizer) pushAll(ctx context.Context, user message.User) error {
	revisions, err := s.persistence.ReadFolderRevisions(ctx, s.folderID, nil)
	if err != nil {
		return err
	}
	user.Receive(message.NewPush(s.folderID, revisions))
	return nil
}
