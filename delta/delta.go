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

// Package delta implements the operation-based representation of a folder.
//
// A Delta is an ordered list of operations applied left to right with an
// implicit cursor: Retain moves the cursor forward, Insert adds text at the
// cursor and Delete removes text after the cursor. Whatever follows the last
// operation is kept as is. Positions count runes, not bytes.
//
// The wire form is a JSON array:
//
//	[{"retain":5},{"insert":"abc"},{"delete":2}]
package delta

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errEmptyOp      = errors.New("operation has no effect")
	errAmbiguousOp  = errors.New("operation sets more than one kind")
	errNegativeSpan = errors.New("operation span is negative")
)

// Kind identifies what an Op does
type Kind int

const (
	// InvalidKind is returned for malformed ops
	InvalidKind Kind = iota
	// RetainKind moves the cursor forward
	RetainKind
	// InsertKind inserts text at the cursor
	InsertKind
	// DeleteKind removes text after the cursor
	DeleteKind
)

// Op is a single operation. Exactly one field is set.
type Op struct {
	Retain int    `json:"retain,omitempty"`
	Insert string `json:"insert,omitempty"`
	Delete int    `json:"delete,omitempty"`
}

// Kind returns the kind of the operation
func (op Op) Kind() Kind {
	set := 0
	kind := InvalidKind
	if op.Retain != 0 {
		set++
		kind = RetainKind
	}
	if op.Insert != "" {
		set++
		kind = InsertKind
	}
	if op.Delete != 0 {
		set++
		kind = DeleteKind
	}
	if set != 1 {
		return InvalidKind
	}
	return kind
}

func (op Op) validate() error {
	if op.Retain < 0 || op.Delete < 0 {
		return errNegativeSpan
	}
	if op.Kind() == InvalidKind {
		if op.Retain == 0 && op.Insert == "" && op.Delete == 0 {
			return errEmptyOp
		}
		return errAmbiguousOp
	}
	return nil
}

// Delta is an ordered list of operations.
type Delta []Op

// New creates an empty Delta
func New() Delta {
	return Delta{}
}

// Retain appends a retain operation
func (d Delta) Retain(n int) Delta {
	if n == 0 {
		return d
	}
	return append(d, Op{Retain: n})
}

// Insert appends an insert operation
func (d Delta) Insert(text string) Delta {
	if text == "" {
		return d
	}
	return append(d, Op{Insert: text})
}

// Delete appends a delete operation
func (d Delta) Delete(n int) Delta {
	if n == 0 {
		return d
	}
	return append(d, Op{Delete: n})
}

// Validate checks every operation is well formed
func (d Delta) Validate() error {
	for i, op := range d {
		if err := op.validate(); err != nil {
			return fmt.Errorf("op #%d: %w", i, err)
		}
	}
	return nil
}

// IsInsertOnly reports whether the delta only holds insert operations,
// which is the shape of a folder snapshot.
func (d Delta) IsInsertOnly() bool {
	for _, op := range d {
		if op.Kind() != InsertKind {
			return false
		}
	}
	return true
}

// Marshal encodes the delta in its wire form
func (d Delta) Marshal() ([]byte, error) {
	if d == nil {
		d = Delta{}
	}
	return json.Marshal([]Op(d))
}

// Unmarshal decodes and validates a delta from its wire form
func Unmarshal(bytes []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(bytes, &d); err != nil {
		return nil, fmt.Errorf("decoding delta: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustMarshal is Marshal that panics on error. Intended for tests and literals.
func MustMarshal(d Delta) []byte {
	bytes, err := d.Marshal()
	if err != nil {
		panic(err)
	}
	return bytes
}
