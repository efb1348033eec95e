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

package delta

import (
	"errors"
	"fmt"
)

var (
	errRetainPastEnd = errors.New("retain past end")
	errDeletePastEnd = errors.New("delete past end")
	errNotSnapshot   = errors.New("snapshot must only contain inserts")
)

// Document is the in-memory text a folder's revisions are composed into.
// A Document is not safe for concurrent use.
type Document struct {
	text []rune
}

// NewDocument creates a Document holding the given text
func NewDocument(text string) *Document {
	return &Document{text: []rune(text)}
}

// FromBytes decodes a snapshot produced by Bytes.
// Empty input yields an empty document.
func FromBytes(bytes []byte) (*Document, error) {
	doc := NewDocument("")
	if len(bytes) == 0 {
		return doc, nil
	}

	d, err := Unmarshal(bytes)
	if err != nil {
		return nil, err
	}

	if !d.IsInsertOnly() {
		return nil, errNotSnapshot
	}

	if err := doc.Apply(d); err != nil {
		return nil, err
	}
	return doc, nil
}

// Apply composes the delta into the document. The document is left
// untouched when the delta does not fit.
func (doc *Document) Apply(d Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}

	out := make([]rune, 0, len(doc.text))
	cursor := 0
	for i, op := range d {
		switch op.Kind() {
		case RetainKind:
			if cursor+op.Retain > len(doc.text) {
				return fmt.Errorf("op #%d: %w", i, errRetainPastEnd)
			}
			out = append(out, doc.text[cursor:cursor+op.Retain]...)
			cursor += op.Retain
		case InsertKind:
			out = append(out, []rune(op.Insert)...)
		case DeleteKind:
			if cursor+op.Delete > len(doc.text) {
				return fmt.Errorf("op #%d: %w", i, errDeletePastEnd)
			}
			cursor += op.Delete
		}
	}

	out = append(out, doc.text[cursor:]...)
	doc.text = out
	return nil
}

// ApplyBytes decodes a delta from its wire form and applies it.
func (doc *Document) ApplyBytes(bytes []byte) error {
	d, err := Unmarshal(bytes)
	if err != nil {
		return err
	}
	return doc.Apply(d)
}

// Clone returns an independent copy of the document
func (doc *Document) Clone() *Document {
	text := make([]rune, len(doc.text))
	copy(text, doc.text)
	return &Document{text: text}
}

// Text returns the current content
func (doc *Document) Text() string {
	return string(doc.text)
}

// Len returns the content length in runes
func (doc *Document) Len() int {
	return len(doc.text)
}

// Delta returns the content as an insert-only delta
func (doc *Document) Delta() Delta {
	return New().Insert(string(doc.text))
}

// Bytes returns the snapshot wire form of the document
func (doc *Document) Bytes() ([]byte, error) {
	return doc.Delta().Marshal()
}
