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

// Package message defines what flows between a client connection and the
// folder manager: inbound client revisions, and the Ack, Push and Pull
// responses the server sends back through a User.
package message

import (
	"github.com/tochemey/foldersync/revision"
)

// ClientRevisionMessage carries the revisions a client submits for one folder.
// RevID is the client's revision id the server acknowledges on success.
type ClientRevisionMessage struct {
	ObjectID  string               `json:"object_id"`
	RevID     int64                `json:"rev_id"`
	Revisions []*revision.Revision `json:"revisions"`
}

// NewClientRevisionMessage creates a ClientRevisionMessage.
// RevID defaults to the highest revision id of the batch.
func NewClientRevisionMessage(objectID string, revisions ...*revision.Revision) *ClientRevisionMessage {
	msg := &ClientRevisionMessage{
		ObjectID:  objectID,
		Revisions: revisions,
	}
	if last := revision.Last(revisions); last != nil {
		msg.RevID = last.RevID
	}
	return msg
}

// NewClientPing creates a ClientRevisionMessage without revisions that
// announces the client's last known revision id.
func NewClientPing(objectID string, revID int64) *ClientRevisionMessage {
	return &ClientRevisionMessage{
		ObjectID: objectID,
		RevID:    revID,
	}
}

// Kind identifies a server response
type Kind int

const (
	// Ack acknowledges that the client's revisions were applied
	Ack Kind = iota
	// Push sends server revisions the client is missing
	Push
	// Pull asks the client for the revisions the server is missing
	Pull
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case Ack:
		return "ack"
	case Push:
		return "push"
	case Pull:
		return "pull"
	default:
		return "unknown"
	}
}

// ServerRevisionMessage is sent to a client through its User.
//
//   - Ack: RevID is the acknowledged client rev id.
//   - Push: Revisions holds the server revisions the client should compose.
//   - Pull: Range is the interval of revisions the client should resend.
type ServerRevisionMessage struct {
	ObjectID  string               `json:"object_id"`
	Kind      Kind                 `json:"kind"`
	RevID     int64                `json:"rev_id,omitempty"`
	Revisions []*revision.Revision `json:"revisions,omitempty"`
	Range     *revision.Range      `json:"range,omitempty"`
}

// NewAck builds the acknowledgment for the given folder and client rev id
func NewAck(objectID string, revID int64) *ServerRevisionMessage {
	return &ServerRevisionMessage{
		ObjectID: objectID,
		Kind:     Ack,
		RevID:    revID,
	}
}

// NewPush builds a push of server revisions
func NewPush(objectID string, revisions []*revision.Revision) *ServerRevisionMessage {
	return &ServerRevisionMessage{
		ObjectID:  objectID,
		Kind:      Push,
		Revisions: revisions,
	}
}

// NewPull builds a request for the client to resend the given range
func NewPull(objectID string, rng revision.Range) *ServerRevisionMessage {
	return &ServerRevisionMessage{
		ObjectID: objectID,
		Kind:     Pull,
		Range:    &rng,
	}
}

// User is the per-connection channel the server answers through.
// Receive is fire-and-forget and must not block for long.
type User interface {
	UserID() string
	Receive(msg *ServerRevisionMessage)
}
