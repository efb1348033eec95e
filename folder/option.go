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

package folder

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/passivation"
)

const (
	// DefaultQueueCapacity is the number of commands a folder accepts before
	// senders block
	DefaultQueueCapacity = 1000
	// DefaultReadRetries is the number of attempts made to read a folder
	DefaultReadRetries = 3
)

var (
	defaultReadRetryDelay    = 50 * time.Millisecond
	defaultReadRetryMaxDelay = time.Second
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(manager *Manager)
}

// enforce compilation error
var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Manager)

func (f OptionFunc) Apply(m *Manager) {
	f(m)
}

// WithLogger sets the manager logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(m *Manager) {
		m.logger = logger
	})
}

// WithQueueCapacity sets how many commands a folder buffers before senders block
func WithQueueCapacity(capacity int) Option {
	return OptionFunc(func(m *Manager) {
		if capacity > 0 {
			m.queueCapacity = capacity
		}
	})
}

// WithPassivation sets the strategy deciding when idle folders are retired.
// Folders are long-lived by default.
func WithPassivation(strategy passivation.Strategy) Option {
	return OptionFunc(func(m *Manager) {
		if strategy != nil {
			m.passivationStrategy = strategy
		}
	})
}

// WithMaxOpenFolders caps the number of open folders. Opening a folder past
// the cap retires the least recently active one. Zero means no cap.
func WithMaxOpenFolders(limit int) Option {
	return OptionFunc(func(m *Manager) {
		if limit >= 0 {
			m.maxOpenFolders = limit
		}
	})
}

// WithSynchronizerFactory replaces the revision synchronizer built for every
// opened folder
func WithSynchronizerFactory(factory SynchronizerFactory) Option {
	return OptionFunc(func(m *Manager) {
		if factory != nil {
			m.synchronizerFactory = factory
		}
	})
}

// WithReadRetries sets how many times a folder read is attempted, and the
// backoff between attempts. A missing folder is never retried.
func WithReadRetries(attempts int, initialDelay, maxDelay time.Duration) Option {
	return OptionFunc(func(m *Manager) {
		if attempts > 0 {
			m.readRetries = attempts
		}
		if initialDelay > 0 {
			m.readRetryDelay = initialDelay
		}
		if maxDelay > 0 {
			m.readRetryMaxDelay = maxDelay
		}
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider used for the folder
// metrics. The global provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(m *Manager) {
		m.meterProvider = provider
	})
}

// WithHandlerRetiredHook registers a function called with the folder id every
// time an open folder is retired
func WithHandlerRetiredHook(hook func(folderID string)) Option {
	return OptionFunc(func(m *Manager) {
		m.retiredHook = hook
	})
}
