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

	"github.com/tochemey/foldersync/delta"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
	"github.com/tochemey/foldersync/revsync"
)

// Synchronizer merges client revisions into the server copy of one folder.
// The folder runner calls it from a single goroutine, one command at a time.
type Synchronizer interface {
	// SyncRevisions reconciles a batch of client revisions and may answer
	// the user with a Push or a Pull.
	SyncRevisions(ctx context.Context, user message.User, revisions []*revision.Revision) error
	// Pong answers a client ping carrying the client's last revision id.
	Pong(ctx context.Context, user message.User, revID int64) error
}

// SynchronizerFactory builds the Synchronizer of a folder when it is opened.
// revID is the last revision of the loaded record and document its content.
type SynchronizerFactory func(folderID string, revID int64, document *delta.Document, persistence persistence.Persistence, logger log.Logger) Synchronizer

// revIDReader is implemented by synchronizers exposing their last revision id
type revIDReader interface {
	RevID() int64
}

func defaultSynchronizerFactory(folderID string, revID int64, document *delta.Document, persistence persistence.Persistence, logger log.Logger) Synchronizer {
	return revsync.New(folderID, revID, document, persistence, revsync.WithLogger(logger))
}
