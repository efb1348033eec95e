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

// Package config loads the folder synchronization settings from a file and
// from FOLDERSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/foldersync/errors"
	"github.com/tochemey/foldersync/folder"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/passivation"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/persistence/boltdb"
	"github.com/tochemey/foldersync/persistence/redis"
)

// EnvPrefix prefixes every environment variable read by Load.
// folder.queue_capacity is read from FOLDERSYNC_FOLDER_QUEUE_CAPACITY.
const EnvPrefix = "FOLDERSYNC"

const (
	// MemoryStore keeps folders in memory
	MemoryStore = "memory"
	// BoltStore keeps folders in a bolt file
	BoltStore = "bolt"
	// RedisStore keeps folders in redis
	RedisStore = "redis"
)

// Config represents the folder synchronization configuration
type Config struct {
	// Specifies the log level: debug, info, warn or error.
	// The default value is info
	LogLevel string
	// Specifies the number of commands a folder buffers before senders block.
	// The default value is 1000
	QueueCapacity int
	// Specifies how long an idle folder stays open.
	// Zero keeps folders open until they are closed or the manager stops.
	PassivateAfter time.Duration
	// Specifies the maximum number of open folders. Zero means no limit
	MaxOpenFolders int
	// Specifies the number of attempts made to read a folder.
	// The default value is 3
	ReadRetries int
	// Specifies the initial backoff between two folder reads
	ReadRetryDelay time.Duration
	// Specifies the maximum backoff between two folder reads
	ReadRetryMaxDelay time.Duration
	// Specifies where folders are stored
	Store StoreConfig
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	// Specifies the backend: memory, bolt or redis
	Kind string
	// Specifies the bolt file path
	BoltPath string
	// Specifies the redis addresses
	RedisAddrs []string
	// Specifies the redis password
	RedisPassword string
	// Specifies the redis database
	RedisDB int
	// Specifies the redis key prefix
	RedisPrefix string
}

// Load reads the configuration file at path, when given, and overrides it
// with the environment. Missing keys take their default value.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := &Config{
		LogLevel:          v.GetString("log.level"),
		QueueCapacity:     v.GetInt("folder.queue_capacity"),
		PassivateAfter:    v.GetDuration("folder.passivate_after"),
		MaxOpenFolders:    v.GetInt("folder.max_open"),
		ReadRetries:       v.GetInt("folder.read_retries"),
		ReadRetryDelay:    v.GetDuration("folder.read_retry_delay"),
		ReadRetryMaxDelay: v.GetDuration("folder.read_retry_max_delay"),
		Store: StoreConfig{
			Kind:          strings.ToLower(v.GetString("store.kind")),
			BoltPath:      v.GetString("store.bolt.path"),
			RedisAddrs:    v.GetStringSlice("store.redis.addrs"),
			RedisPassword: v.GetString("store.redis.password"),
			RedisDB:       v.GetInt("store.redis.db"),
			RedisPrefix:   v.GetString("store.redis.prefix"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that every setting is in range
func (c *Config) Validate() error {
	var err error
	if log.ParseLevel(c.LogLevel) == log.InvalidLevel {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("log.level", fmt.Sprintf("unknown level %q", c.LogLevel)))
	}
	if c.QueueCapacity <= 0 {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("folder.queue_capacity", "must be positive"))
	}
	if c.PassivateAfter < 0 {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("folder.passivate_after", "must not be negative"))
	}
	if c.MaxOpenFolders < 0 {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("folder.max_open", "must not be negative"))
	}
	if c.ReadRetries <= 0 {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("folder.read_retries", "must be positive"))
	}
	if c.ReadRetryDelay < 0 || c.ReadRetryMaxDelay < c.ReadRetryDelay {
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("folder.read_retry_delay", "must be between zero and the maximum delay"))
	}

	switch c.Store.Kind {
	case MemoryStore:
	case BoltStore:
		if c.Store.BoltPath == "" {
			err = multierr.Append(err, gerrors.NewErrInvalidConfig("store.bolt.path", "is required"))
		}
	case RedisStore:
		if len(c.Store.RedisAddrs) == 0 {
			err = multierr.Append(err, gerrors.NewErrInvalidConfig("store.redis.addrs", "is required"))
		}
	default:
		err = multierr.Append(err, gerrors.NewErrInvalidConfig("store.kind", fmt.Sprintf("unknown store %q", c.Store.Kind)))
	}
	return err
}

// Logger returns a logger writing to stdout at the configured level
func (c *Config) Logger() log.Logger {
	return log.NewZap(log.ParseLevel(c.LogLevel), os.Stdout)
}

// Options maps the configuration onto folder manager options
func (c *Config) Options(logger log.Logger) []folder.Option {
	strategy := passivation.Strategy(passivation.NewLongLivedStrategy())
	if c.PassivateAfter > 0 {
		strategy = passivation.NewTimeBasedStrategy(c.PassivateAfter)
	}

	return []folder.Option{
		folder.WithLogger(logger),
		folder.WithQueueCapacity(c.QueueCapacity),
		folder.WithPassivation(strategy),
		folder.WithMaxOpenFolders(c.MaxOpenFolders),
		folder.WithReadRetries(c.ReadRetries, c.ReadRetryDelay, c.ReadRetryMaxDelay),
	}
}

// OpenStore opens the configured persistence backend. The returned function
// releases the backend.
func (c *Config) OpenStore() (persistence.Persistence, func() error, error) {
	switch c.Store.Kind {
	case BoltStore:
		store, err := boltdb.NewStore(c.Store.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case RedisStore:
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    c.Store.RedisAddrs,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
		})
		store := redis.NewStore(client, c.Store.RedisPrefix)
		return store, func() error {
			return multierr.Combine(store.Close(), client.Close())
		}, nil
	default:
		return persistence.NewMemoryStore(), func() error { return nil }, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", log.InfoLevel.String())
	v.SetDefault("folder.queue_capacity", folder.DefaultQueueCapacity)
	v.SetDefault("folder.passivate_after", time.Duration(0))
	v.SetDefault("folder.max_open", 0)
	v.SetDefault("folder.read_retries", folder.DefaultReadRetries)
	v.SetDefault("folder.read_retry_delay", 50*time.Millisecond)
	v.SetDefault("folder.read_retry_max_delay", time.Second)
	v.SetDefault("store.kind", MemoryStore)
	v.SetDefault("store.bolt.path", "")
	v.SetDefault("store.redis.addrs", []string{})
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", redis.DefaultPrefix)
}
