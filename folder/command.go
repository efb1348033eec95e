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
	"sync"

	"github.com/google/uuid"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/revision"
)

type commandKind int

const (
	applyRevisionsCommand commandKind = iota
	pingCommand
)

func (k commandKind) String() string {
	switch k {
	case applyRevisionsCommand:
		return "apply_revisions"
	case pingCommand:
		return "ping"
	default:
		return "unknown"
	}
}

// command is a unit of work queued on a folder handler.
// ctx carries the caller's values but not its cancellation: once accepted, a
// command always runs to completion.
type command struct {
	id        string
	kind      commandKind
	ctx       context.Context
	user      message.User
	revisions []*revision.Revision
	revID     int64
	reply     *reply
}

func newApplyRevisions(ctx context.Context, user message.User, revisions []*revision.Revision) *command {
	return &command{
		id:        uuid.NewString(),
		kind:      applyRevisionsCommand,
		ctx:       context.WithoutCancel(ctx),
		user:      user,
		revisions: revisions,
		reply:     newReply(),
	}
}

func newPing(ctx context.Context, user message.User, revID int64) *command {
	return &command{
		id:    uuid.NewString(),
		kind:  pingCommand,
		ctx:   context.WithoutCancel(ctx),
		user:  user,
		revID: revID,
		reply: newReply(),
	}
}

// reply is the single-use completion slot of a command. Completing it never
// blocks, whether or not the caller is still waiting.
type reply struct {
	once sync.Once
	ch   chan error
}

func newReply() *reply {
	return &reply{ch: make(chan error, 1)}
}

// fulfill completes the reply with the command outcome
func (r *reply) fulfill(err error) {
	r.once.Do(func() {
		r.ch <- err
		close(r.ch)
	})
}

// release completes the reply without an outcome
func (r *reply) release() {
	r.once.Do(func() {
		close(r.ch)
	})
}

// await waits for the outcome or for the caller to give up
func (r *reply) await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-r.ch:
		if !ok {
			return gerrors.ErrReplyDropped
		}
		return err
	}
}
