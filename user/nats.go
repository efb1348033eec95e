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

package user

import (
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
)

// DefaultSubjectPrefix is the subject prefix used when none is given
const DefaultSubjectPrefix = "foldersync.users"

// NATS publishes server messages as JSON on the subject <prefix>.<userID>
type NATS struct {
	conn    *nats.Conn
	userID  string
	subject string
	logger  log.Logger
}

var _ message.User = (*NATS)(nil)

// NATSOption configures a NATS user
type NATSOption func(*NATS)

// WithNATSLogger sets the logger reporting publish failures
func WithNATSLogger(logger log.Logger) NATSOption {
	return func(n *NATS) {
		n.logger = logger
	}
}

// NewNATS creates a user publishing on the given connection
func NewNATS(conn *nats.Conn, userID, subjectPrefix string, opts ...NATSOption) *NATS {
	subjectPrefix = strings.TrimSuffix(strings.TrimSpace(subjectPrefix), ".")
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}

	n := &NATS{
		conn:    conn,
		userID:  userID,
		subject: subjectPrefix + "." + userID,
		logger:  log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// UserID returns the user id
func (n *NATS) UserID() string {
	return n.userID
}

// Subject returns the subject the user messages are published on
func (n *NATS) Subject() string {
	return n.subject
}

// Receive publishes the message. Delivery is at most once: failures are
// logged and the message is lost.
func (n *NATS) Receive(msg *message.ServerRevisionMessage) {
	bytes, err := json.Marshal(msg)
	if err != nil {
		n.logger.Errorf("failed to encode %s message for user %s: %v", msg.Kind, n.userID, err)
		return
	}

	if err := n.conn.Publish(n.subject, bytes); err != nil {
		n.logger.Warnf("failed to publish %s message to user %s: %v", msg.Kind, n.userID, err)
	}
}
