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

// Package redis implements persistence.Persistence on top of go-redis.
//
// A folder is stored under two keys sharing the configured prefix:
//
//	<prefix>:folder:<id>            marker written once at creation
//	<prefix>:folder:<id>:revisions  hash of rev id -> JSON revision
//
// Folder creation runs as a Lua script so the marker check and the bootstrap
// writes are atomic across concurrent servers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

// DefaultPrefix is used when NewStore is given an empty prefix
const DefaultPrefix = "foldersync"

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
return 1
`)

// Store is a persistence.Persistence backed by redis.
// The client is owned by the caller and is not closed by the store.
type Store struct {
	client redis.UniversalClient
	prefix string
	closed *atomic.Bool
}

var _ persistence.Persistence = (*Store)(nil)

// NewStore creates a Store using the given client and key prefix
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		closed: atomic.NewBool(false),
	}
}

// ReadFolder composes the stored revisions of the folder
func (s *Store) ReadFolder(ctx context.Context, _, folderID string) (*persistence.FolderRecord, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	exists, err := s.client.Exists(ctx, s.markerKey(folderID), s.revisionsKey(folderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: checking folder %s: %w", folderID, err)
	}

	if exists == 0 {
		return nil, gerrors.NewErrFolderNotFound(folderID)
	}

	revisions, err := s.ReadFolderRevisions(ctx, folderID, nil)
	if err != nil {
		return nil, err
	}
	return persistence.NewFolderRecord(folderID, revisions)
}

// CreateFolder atomically writes the folder marker and its bootstrap revisions.
// Returns a nil record when the marker already exists.
func (s *Store) CreateFolder(ctx context.Context, _, folderID string, revisions []*revision.Revision) (*persistence.FolderRecord, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	record, err := persistence.NewFolderRecord(folderID, revisions)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, 1+2*len(revisions))
	args = append(args, folderID)
	for _, rev := range revisions {
		bytes, err := json.Marshal(rev)
		if err != nil {
			return nil, err
		}
		args = append(args, field(rev.RevID), bytes)
	}

	keys := []string{s.markerKey(folderID), s.revisionsKey(folderID)}
	created, err := createScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("redis: creating folder %s: %w", folderID, err)
	}

	if created == 0 {
		return nil, nil
	}
	return record, nil
}

// SaveFolderRevisions writes the revisions in a single transaction
func (s *Store) SaveFolderRevisions(ctx context.Context, revisions []*revision.Revision) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if len(revisions) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rev := range revisions {
			bytes, err := json.Marshal(rev)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, s.revisionsKey(rev.ObjectID), field(rev.RevID), bytes)
		}
		return nil
	})
	return err
}

// ReadFolderRevisions returns the requested revisions ordered by RevID
func (s *Store) ReadFolderRevisions(ctx context.Context, folderID string, revIDs []int64) ([]*revision.Revision, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var raws []string
	key := s.revisionsKey(folderID)
	if revIDs == nil {
		values, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: reading folder %s revisions: %w", folderID, err)
		}
		raws = make([]string, 0, len(values))
		for _, raw := range values {
			raws = append(raws, raw)
		}
	} else if len(revIDs) > 0 {
		fields := make([]string, 0, len(revIDs))
		for _, id := range revIDs {
			fields = append(fields, field(id))
		}
		values, err := s.client.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: reading folder %s revisions: %w", folderID, err)
		}
		for _, value := range values {
			if raw, ok := value.(string); ok {
				raws = append(raws, raw)
			}
		}
	}

	revisions := make([]*revision.Revision, 0, len(raws))
	for _, raw := range raws {
		rev := new(revision.Revision)
		if err := json.Unmarshal([]byte(raw), rev); err != nil {
			return nil, gerrors.NewErrInvalidFolderData(folderID, err)
		}
		revisions = append(revisions, rev)
	}
	revision.Sort(revisions)
	return revisions, nil
}

// Close marks the store closed. The redis client stays open.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) ensureOpen() error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return nil
}

func (s *Store) markerKey(folderID string) string {
	return s.prefix + ":folder:" + folderID
}

func (s *Store) revisionsKey(folderID string) string {
	return s.markerKey(folderID) + ":revisions"
}

func field(revID int64) string {
	return strconv.FormatInt(revID, 10)
}
