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

// Package revision defines the durable unit of change applied to a folder.
package revision

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"

	gerrors "github.com/tochemey/foldersync/errors"
)

// Revision is one ordered change to a folder. RevID is strictly increasing
// per folder and BaseRevID is the revision the change was authored against.
type Revision struct {
	ObjectID  string `json:"object_id"`
	BaseRevID int64  `json:"base_rev_id"`
	RevID     int64  `json:"rev_id"`
	UserID    string `json:"user_id"`
	Bytes     []byte `json:"bytes"`
	Checksum  string `json:"checksum"`
}

// New creates a Revision and computes its checksum.
func New(objectID string, baseRevID, revID int64, userID string, bytes []byte) *Revision {
	return &Revision{
		ObjectID:  objectID,
		BaseRevID: baseRevID,
		RevID:     revID,
		UserID:    userID,
		Bytes:     bytes,
		Checksum:  Checksum(bytes),
	}
}

// Checksum returns the hex encoded xxh3 hash of the payload.
func Checksum(bytes []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(bytes))
}

// Verify returns an error when the stored checksum does not match the payload.
func (r *Revision) Verify() error {
	if r == nil {
		return gerrors.NewErrInvalidRevision(0, "nil revision")
	}
	if r.Checksum != Checksum(r.Bytes) {
		return gerrors.NewErrInvalidRevision(r.RevID, "checksum mismatch")
	}
	return nil
}

// String returns a short description used in logs
func (r *Revision) String() string {
	return r.ObjectID + "@" + strconv.FormatInt(r.RevID, 10)
}

// FirstRevID is the id of the first revision of a folder
const FirstRevID int64 = 1

const maxPreallocatedRevIDs = 1024

// Range is an inclusive interval of revision ids.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of revision ids covered by the range, capped at
// math.MaxInt64.
func (r Range) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	span := uint64(r.End) - uint64(r.Start)
	if span >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(span) + 1
}

// RevIDs returns every revision id of the range in ascending order.
func (r Range) RevIDs() []int64 {
	if r.End < r.Start {
		return []int64{}
	}

	ids := make([]int64, 0, min(r.Len(), maxPreallocatedRevIDs))
	for id := r.Start; ; id++ {
		ids = append(ids, id)
		if id == r.End {
			return ids
		}
	}
}

// From returns the range starting no earlier than start
func (r Range) From(start int64) Range {
	r.Start = max(r.Start, start)
	return r
}

// Sort orders revisions by ascending RevID in place.
func Sort(revisions []*Revision) {
	sort.SliceStable(revisions, func(i, j int) bool {
		return revisions[i].RevID < revisions[j].RevID
	})
}

// Last returns the revision with the highest RevID, or nil.
func Last(revisions []*Revision) *Revision {
	var last *Revision
	for _, rev := range revisions {
		if last == nil || rev.RevID > last.RevID {
			last = rev
		}
	}
	return last
}
