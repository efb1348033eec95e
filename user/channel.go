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

// Package user provides message.User implementations delivering server
// messages to connected clients.
package user

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/foldersync/message"
)

// Channel delivers server messages on a buffered Go channel. Receive never
// blocks: a message that does not fit in the buffer is dropped and counted.
type Channel struct {
	userID   string
	messages chan *message.ServerRevisionMessage
	dropped  *atomic.Int64

	mu     sync.RWMutex
	closed bool
}

var _ message.User = (*Channel)(nil)

// NewChannel creates a Channel user buffering up to buffer messages
func NewChannel(userID string, buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{
		userID:   userID,
		messages: make(chan *message.ServerRevisionMessage, buffer),
		dropped:  atomic.NewInt64(0),
	}
}

// UserID returns the user id
func (c *Channel) UserID() string {
	return c.userID
}

// Receive queues the message for the client
func (c *Channel) Receive(msg *message.ServerRevisionMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Inc()
		return
	}

	select {
	case c.messages <- msg:
	default:
		c.dropped.Inc()
	}
}

// Messages returns the channel the client reads from. It is closed by Close.
func (c *Channel) Messages() <-chan *message.ServerRevisionMessage {
	return c.messages
}

// Dropped returns the number of messages that could not be delivered
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops the delivery. Messages received afterwards are dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.messages)
}
