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

// Package boltdb implements persistence.Persistence on top of go.etcd.io/bbolt.
//
// Every folder owns a nested bucket under the root bucket. Revisions are
// keyed by their big-endian RevID so a cursor walks them in order, and their
// JSON form is compressed with zstd.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

const (
	boltFileMode   os.FileMode = 0o600
	rootBucketName             = "folders"
)

var (
	boltTimeout        = 5 * time.Second
	defaultBoltOptions = &bbolt.Options{Timeout: boltTimeout, NoGrowSync: true}
)

// Store is a durable persistence.Persistence backed by a single bbolt file.
//
// bbolt provides single-writer/multi-reader semantics; the store only guards
// its closed state.
type Store struct {
	db      *bbolt.DB
	bucket  []byte
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	closed  *atomic.Bool
}

var _ persistence.Persistence = (*Store)(nil)

// NewStore opens (or creates) the bbolt database at path.
func NewStore(path string) (*Store, error) {
	optionsCopy := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("boltdb: opening %s: %w", path, err)
	}

	bucket := []byte(rootBucketName)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: initializing root bucket: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: creating zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		encoder.Close()
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: creating zstd decoder: %w", err)
	}

	return &Store{
		db:      db,
		bucket:  bucket,
		encoder: encoder,
		decoder: decoder,
		closed:  atomic.NewBool(false),
	}, nil
}

// ReadFolder composes the stored revisions of the folder
func (s *Store) ReadFolder(ctx context.Context, _, folderID string) (*persistence.FolderRecord, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}

	var (
		revisions []*revision.Revision
		found     bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		folder := tx.Bucket(s.bucket).Bucket([]byte(folderID))
		if folder == nil {
			return nil
		}
		found = true
		var err error
		revisions, err = s.readAll(folder, nil)
		return err
	})
	if err != nil {
		return nil, gerrors.NewErrInvalidFolderData(folderID, err)
	}

	if !found {
		return nil, gerrors.NewErrFolderNotFound(folderID)
	}
	return persistence.NewFolderRecord(folderID, revisions)
}

// CreateFolder creates the folder bucket and writes the bootstrap revisions
// in one transaction. Returns a nil record when the bucket already exists.
func (s *Store) CreateFolder(ctx context.Context, _, folderID string, revisions []*revision.Revision) (*persistence.FolderRecord, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}

	record, err := persistence.NewFolderRecord(folderID, revisions)
	if err != nil {
		return nil, err
	}

	created := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root.Bucket([]byte(folderID)) != nil {
			return nil
		}

		folder, err := root.CreateBucket([]byte(folderID))
		if err != nil {
			return err
		}

		for _, rev := range revisions {
			if err := s.put(folder, rev); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb: creating folder %s: %w", folderID, err)
	}

	if !created {
		return nil, nil
	}
	return record, nil
}

// SaveFolderRevisions writes the revisions in a single transaction
func (s *Store) SaveFolderRevisions(ctx context.Context, revisions []*revision.Revision) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}

	if len(revisions) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(s.bucket)
		for _, rev := range revisions {
			folder, err := root.CreateBucketIfNotExists([]byte(rev.ObjectID))
			if err != nil {
				return err
			}
			if err := s.put(folder, rev); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadFolderRevisions returns the requested revisions ordered by RevID
func (s *Store) ReadFolderRevisions(ctx context.Context, folderID string, revIDs []int64) ([]*revision.Revision, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}

	var revisions []*revision.Revision
	err := s.db.View(func(tx *bbolt.Tx) error {
		folder := tx.Bucket(s.bucket).Bucket([]byte(folderID))
		if folder == nil {
			return nil
		}
		var err error
		revisions, err = s.readAll(folder, revIDs)
		return err
	})
	if err != nil {
		return nil, gerrors.NewErrInvalidFolderData(folderID, err)
	}
	return revisions, nil
}

// Close releases the zstd codecs and the bbolt handle. The database file is kept.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.decoder.Close()
	return multierr.Combine(s.encoder.Close(), s.db.Close())
}

func (s *Store) put(folder *bbolt.Bucket, rev *revision.Revision) error {
	bytes, err := json.Marshal(rev)
	if err != nil {
		return err
	}
	return folder.Put(revKey(rev.RevID), s.encoder.EncodeAll(bytes, nil))
}

// readAll decodes the revisions of a folder bucket. A nil revIDs walks the
// whole bucket, otherwise only the requested keys are fetched.
func (s *Store) readAll(folder *bbolt.Bucket, revIDs []int64) ([]*revision.Revision, error) {
	if revIDs != nil {
		revisions := make([]*revision.Revision, 0, len(revIDs))
		for _, id := range revIDs {
			raw := folder.Get(revKey(id))
			if raw == nil {
				continue
			}
			rev, err := s.decode(raw)
			if err != nil {
				return nil, err
			}
			revisions = append(revisions, rev)
		}
		revision.Sort(revisions)
		return revisions, nil
	}

	var revisions []*revision.Revision
	err := folder.ForEach(func(_, raw []byte) error {
		rev, err := s.decode(raw)
		if err != nil {
			return err
		}
		revisions = append(revisions, rev)
		return nil
	})
	return revisions, err
}

func (s *Store) decode(raw []byte) (*revision.Revision, error) {
	bytes, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, err
	}
	rev := new(revision.Revision)
	if err := json.Unmarshal(bytes, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

func (s *Store) ensureOpen(ctx context.Context) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return ctx.Err()
}

// revKey encodes a revision id so that byte order matches numeric order for
// non-negative ids.
func revKey(revID int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(revID))
	return key
}
