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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta(t *testing.T) {
	t.Run("With builder", func(t *testing.T) {
		d := New().Retain(2).Insert("xy").Delete(1).Retain(0).Insert("")
		require.Len(t, d, 3)
		assert.Equal(t, RetainKind, d[0].Kind())
		assert.Equal(t, InsertKind, d[1].Kind())
		assert.Equal(t, DeleteKind, d[2].Kind())
		require.NoError(t, d.Validate())
		assert.False(t, d.IsInsertOnly())
	})
	t.Run("With wire form", func(t *testing.T) {
		d := New().Retain(5).Insert("abc").Delete(2)
		bytes, err := d.Marshal()
		require.NoError(t, err)
		assert.JSONEq(t, `[{"retain":5},{"insert":"abc"},{"delete":2}]`, string(bytes))

		decoded, err := Unmarshal(bytes)
		require.NoError(t, err)
		assert.Equal(t, d, decoded)
	})
	t.Run("With nil delta", func(t *testing.T) {
		var d Delta
		assert.Equal(t, "[]", string(MustMarshal(d)))
	})
	t.Run("With malformed ops", func(t *testing.T) {
		_, err := Unmarshal([]byte(`[{}]`))
		require.ErrorIs(t, err, errEmptyOp)

		_, err = Unmarshal([]byte(`[{"retain":1,"insert":"a"}]`))
		require.ErrorIs(t, err, errAmbiguousOp)

		_, err = Unmarshal([]byte(`[{"delete":-1}]`))
		require.ErrorIs(t, err, errNegativeSpan)

		_, err = Unmarshal([]byte(`not json`))
		require.Error(t, err)
	})
}

func TestDocument(t *testing.T) {
	t.Run("Apply composes ops with an implicit cursor", func(t *testing.T) {
		doc := NewDocument("hello world")
		require.NoError(t, doc.Apply(New().Retain(6).Delete(5).Insert("folder")))
		assert.Equal(t, "hello folder", doc.Text())

		require.NoError(t, doc.Apply(New().Insert(">> ")))
		assert.Equal(t, ">> hello folder", doc.Text())
	})
	t.Run("Apply counts runes", func(t *testing.T) {
		doc := NewDocument("héllo")
		require.NoError(t, doc.Apply(New().Retain(1).Delete(1).Insert("e")))
		assert.Equal(t, "hello", doc.Text())
		assert.Equal(t, 5, doc.Len())
	})
	t.Run("Apply rejects ops past the end and keeps the content", func(t *testing.T) {
		doc := NewDocument("abc")
		err := doc.Apply(New().Retain(2).Delete(5))
		require.ErrorIs(t, err, errDeletePastEnd)
		assert.Equal(t, "abc", doc.Text())

		err = doc.Apply(New().Retain(4))
		require.ErrorIs(t, err, errRetainPastEnd)
		assert.Equal(t, "abc", doc.Text())
	})
	t.Run("Snapshot round trip", func(t *testing.T) {
		doc := NewDocument("")
		require.NoError(t, doc.ApplyBytes(MustMarshal(New().Insert("abc"))))
		require.NoError(t, doc.ApplyBytes(MustMarshal(New().Retain(3).Insert("def"))))

		bytes, err := doc.Bytes()
		require.NoError(t, err)

		restored, err := FromBytes(bytes)
		require.NoError(t, err)
		assert.Equal(t, "abcdef", restored.Text())
	})
	t.Run("Clone is independent", func(t *testing.T) {
		doc := NewDocument("abc")
		cp := doc.Clone()
		require.NoError(t, cp.Apply(New().Retain(3).Insert("d")))
		assert.Equal(t, "abc", doc.Text())
		assert.Equal(t, "abcd", cp.Text())
	})
	t.Run("FromBytes with empty input", func(t *testing.T) {
		doc, err := FromBytes(nil)
		require.NoError(t, err)
		assert.Empty(t, doc.Text())
	})
	t.Run("FromBytes rejects non snapshot deltas", func(t *testing.T) {
		_, err := FromBytes(MustMarshal(New().Retain(1)))
		require.ErrorIs(t, err, errNotSnapshot)

		_, err = FromBytes([]byte("{"))
		require.Error(t, err)
	})
}
