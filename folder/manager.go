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

// Package folder routes client revisions to the open folders of a server.
//
// Every open folder is served by a Handler owning a bounded command queue
// consumed by a single runner, so revisions of one folder are applied
// strictly one after the other while different folders progress in
// parallel. Folders are opened lazily on first access and retired according
// to the configured passivation strategy.
package folder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	gerrors "github.com/tochemey/foldersync/errors"
	imetric "github.com/tochemey/foldersync/internal/metric"
	"github.com/tochemey/foldersync/internal/types"
	"github.com/tochemey/foldersync/log"
	"github.com/tochemey/foldersync/message"
	"github.com/tochemey/foldersync/passivation"
	"github.com/tochemey/foldersync/persistence"
	"github.com/tochemey/foldersync/revision"
)

// Manager is the entry point of the folder synchronization engine. It owns
// the registry of open folders and routes client messages to them.
type Manager struct {
	persistence persistence.Persistence
	logger      log.Logger

	registry  *registry
	loads     singleflight.Group
	scheduler *passivationScheduler
	started   *atomic.Bool
	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	queueCapacity       int
	passivationStrategy passivation.Strategy
	maxOpenFolders      int
	synchronizerFactory SynchronizerFactory
	readRetries         int
	readRetryDelay      time.Duration
	readRetryMaxDelay   time.Duration
	meterProvider       metric.MeterProvider
	metric              *imetric.FolderMetric
	retiredHook         func(folderID string)
}

// NewManager creates a Manager reading and writing folders through the given
// persistence. The Manager must be started before use.
func NewManager(store persistence.Persistence, opts ...Option) *Manager {
	m := &Manager{
		persistence:         store,
		logger:              log.DefaultLogger,
		registry:            newRegistry(),
		started:             atomic.NewBool(false),
		queueCapacity:       DefaultQueueCapacity,
		passivationStrategy: passivation.NewLongLivedStrategy(),
		synchronizerFactory: defaultSynchronizerFactory,
		readRetries:         DefaultReadRetries,
		readRetryDelay:      defaultReadRetryDelay,
		readRetryMaxDelay:   defaultReadRetryMaxDelay,
	}

	for _, opt := range opts {
		opt.Apply(m)
	}

	m.metric = m.newMetric()
	m.scheduler = newPassivationScheduler(m.logger, m.passivate)
	return m
}

// Start makes the Manager accept client messages. A stopped Manager can be
// started again.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.started.Load() {
		return nil
	}

	m.scheduler.Start(ctx)
	m.started.Store(true)
	m.logger.Infof("folder manager started (passivation=%s, queue capacity=%d)", m.passivationStrategy, m.queueCapacity)
	return nil
}

// Stop retires every open folder. Each folder first completes the commands
// it already accepted. Stop returns ctx.Err() when ctx is done before all
// folders are retired; retirement then carries on in the background.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.started.CompareAndSwap(true, false) {
		return gerrors.ErrManagerNotStarted
	}

	if err := m.scheduler.Stop(ctx); err != nil {
		m.logger.Warnf("passivation scheduler did not stop in time: %v", err)
	}

	for _, h := range m.registry.all() {
		m.retire(h, "shutdown")
	}

	// folders retired earlier may still be draining
	eg := new(errgroup.Group)
	for _, h := range m.registry.draining() {
		h := h
		eg.Go(func() error {
			select {
			case <-h.retired:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	m.logger.Info("folder manager stopped")
	return nil
}

// HandleClientRevisions applies the client revisions to their folder.
//
// An unknown folder is created with the revisions as its bootstrap content.
// The user receives an Ack carrying the message rev id only when the
// revisions were applied.
func (m *Manager) HandleClientRevisions(ctx context.Context, user message.User, msg *message.ClientRevisionMessage) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	if err := m.applyRevisions(ctx, user, msg); err != nil {
		return err
	}

	user.Receive(message.NewAck(msg.ObjectID, msg.RevID))
	return nil
}

// HandleClientPing forwards a client ping to its folder. A ping for a folder
// that does not exist is ignored.
func (m *Manager) HandleClientPing(ctx context.Context, user message.User, msg *message.ClientRevisionMessage) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	userID := user.UserID()
	handler, ok := m.GetFolderHandler(ctx, userID, msg.ObjectID)
	if !ok {
		m.logger.Debugf("folder %s doesn't exist, ignoring client ping", msg.ObjectID)
		return nil
	}

	err := handler.Ping(ctx, user, msg.RevID)
	if !errors.Is(err, gerrors.ErrHandlerClosed) {
		return err
	}

	// the handler was retired after the lookup
	if handler, ok = m.GetFolderHandler(ctx, userID, msg.ObjectID); !ok {
		return nil
	}
	return handler.Ping(ctx, user, msg.RevID)
}

// GetFolderHandler returns the open handler of a folder, loading the folder
// from persistence on first access. Concurrent first accesses of the same
// folder share a single load. False is returned when the folder does not
// exist or could not be loaded.
func (m *Manager) GetFolderHandler(ctx context.Context, userID, folderID string) (*Handler, bool) {
	if !m.started.Load() {
		return nil, false
	}

	if h, ok := m.registry.get(folderID); ok {
		return h, true
	}

	// the load outlives the caller that started it since other callers may
	// be waiting on it
	loadCtx := context.WithoutCancel(ctx)
	resultChan := m.loads.DoChan(folderID, func() (any, error) {
		if h, ok := m.registry.get(folderID); ok {
			return h, nil
		}

		if err := m.registry.awaitRetired(loadCtx, folderID); err != nil {
			return nil, err
		}

		record, err := m.readFolder(loadCtx, userID, folderID)
		if err != nil {
			return nil, err
		}
		return m.open(record)
	})

	select {
	case <-ctx.Done():
		return nil, false
	case result := <-resultChan:
		if result.Err != nil {
			if errors.Is(result.Err, gerrors.ErrFolderNotFound) {
				m.logger.Debugf("folder %s not found", folderID)
			} else {
				m.logger.Errorf("failed to open folder %s: %v", folderID, result.Err)
			}
			return nil, false
		}
		return result.Val.(*Handler), true
	}
}

// CreateFolder creates a folder from its bootstrap revisions and opens it.
// The error wraps ErrCreateFolderFailure, and ErrFolderAlreadyExists when the
// folder was already created.
func (m *Manager) CreateFolder(ctx context.Context, userID, folderID string, revisions []*revision.Revision) (*Handler, error) {
	if !m.started.Load() {
		return nil, gerrors.ErrManagerNotStarted
	}

	record, err := m.persistence.CreateFolder(ctx, userID, folderID, revisions)
	if err != nil {
		return nil, gerrors.NewErrCreateFolderFailure(folderID, err)
	}

	if record == nil {
		return nil, gerrors.NewErrCreateFolderFailure(folderID, gerrors.ErrFolderAlreadyExists)
	}

	h, err := m.open(record)
	if err != nil {
		return nil, gerrors.NewErrCreateFolderFailure(folderID, err)
	}

	m.logger.Debugf("folder %s created by user %s", folderID, userID)
	return h, nil
}

// CloseFolder retires the given open folders and waits until they have
// drained. Unknown or closed folders are skipped. When ctx is done first
// ctx.Err() is returned and the retirement carries on in the background.
func (m *Manager) CloseFolder(ctx context.Context, folderIDs ...string) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	var signals []<-chan types.Unit
	for _, folderID := range folderIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h, ok := m.registry.get(folderID); ok {
			if signal := m.retire(h, "closed"); signal != nil {
				signals = append(signals, signal)
			}
		}
	}

	for _, signal := range signals {
		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// OpenFolders returns the ids of the open folders
func (m *Manager) OpenFolders() []string {
	return m.registry.ids()
}

// Len returns the number of open folders
func (m *Manager) Len() int {
	return m.registry.len()
}

func (m *Manager) applyRevisions(ctx context.Context, user message.User, msg *message.ClientRevisionMessage) error {
	userID := user.UserID()
	handler, ok := m.GetFolderHandler(ctx, userID, msg.ObjectID)
	if !ok {
		// the lookup may have been cut short by the caller
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := m.CreateFolder(ctx, userID, msg.ObjectID, msg.Revisions)
		if !errors.Is(err, gerrors.ErrFolderAlreadyExists) {
			return err
		}

		// a concurrent first access created the folder, forward to its handler
		if handler, ok = m.GetFolderHandler(ctx, userID, msg.ObjectID); !ok {
			return err
		}
	}

	err := handler.ApplyRevisions(ctx, user, msg.Revisions)
	if !errors.Is(err, gerrors.ErrHandlerClosed) {
		return err
	}

	// the handler was retired after the lookup
	if handler, ok = m.GetFolderHandler(ctx, userID, msg.ObjectID); !ok {
		return err
	}
	return handler.ApplyRevisions(ctx, user, msg.Revisions)
}

// readFolder reads a folder record, retrying transient failures
func (m *Manager) readFolder(ctx context.Context, userID, folderID string) (*persistence.FolderRecord, error) {
	var (
		record   *persistence.FolderRecord
		notFound error
	)

	retrier := retry.NewRetrier(m.readRetries, m.readRetryDelay, m.readRetryMaxDelay)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		var err error
		record, err = m.persistence.ReadFolder(ctx, userID, folderID)
		if errors.Is(err, gerrors.ErrFolderNotFound) {
			notFound = err
			return nil
		}
		return err
	})

	if notFound != nil {
		return nil, notFound
	}
	return record, err
}

// open builds a handler for the record and registers it. When the folder
// already has a live handler the new one is discarded and the live one is
// returned.
func (m *Manager) open(record *persistence.FolderRecord) (*Handler, error) {
	h, err := newHandler(record, m.persistence, &handlerConfig{
		queueCapacity: m.queueCapacity,
		logger:        m.logger,
		factory:       m.synchronizerFactory,
		metric:        m.metric,
		onActivity:    m.scheduler.Touch,
	})
	if err != nil {
		return nil, err
	}

	winner, inserted := m.registry.putIfAbsent(h)
	if !inserted {
		h.close()
		m.logger.Debugf("folder %s already open, discarding duplicate handler", record.FolderID)
		return winner, nil
	}

	m.metric.HandlerOpened(context.Background())
	m.scheduler.Register(h, m.passivationStrategy)
	m.logger.Debugf("folder %s opened at revision %d", record.FolderID, record.RevID)

	if !m.started.Load() {
		m.retire(h, "shutdown")
		return nil, gerrors.ErrManagerNotStarted
	}

	m.enforceMaxOpenFolders(h)
	return h, nil
}

// enforceMaxOpenFolders retires the least recently active folders while the
// cap is exceeded. The folder just opened and busy folders are never picked,
// so the cap can be exceeded until those folders become idle.
func (m *Manager) enforceMaxOpenFolders(opened *Handler) {
	if m.maxOpenFolders <= 0 {
		return
	}

	for m.registry.len() > m.maxOpenFolders {
		victim, ok := m.registry.leastRecentlyActive(opened)
		if !ok {
			m.logger.Debugf("%d open folders exceed the limit of %d, every other folder is busy", m.registry.len(), m.maxOpenFolders)
			return
		}
		m.retire(victim, "max open folders reached")
	}
}

// passivate is called by the scheduler once a folder deadline has passed.
// A busy folder is refused and rescheduled.
func (m *Manager) passivate(h *Handler) bool {
	if h.isBusy() {
		return false
	}

	if strategy, ok := m.passivationStrategy.(*passivation.TimeBasedStrategy); ok {
		if time.Since(h.LastActivity()) < strategy.Timeout() {
			return false
		}
	}

	m.retire(h, m.passivationStrategy.Name())
	return true
}

// retire unregisters the handler and drains it in the background, so that
// a stalled folder never holds up the caller. The returned channel is closed
// once the handler has drained and the retired hook has run. It returns nil
// when the handler was not the live handler of its folder.
func (m *Manager) retire(h *Handler, reason string) <-chan types.Unit {
	if !m.registry.detach(h) {
		return nil
	}

	m.scheduler.Unregister(h)
	m.metric.HandlerRetired(context.Background())
	m.logger.Debugf("folder %s retiring (%s)", h.ID(), reason)

	go func() {
		h.close()
		if m.retiredHook != nil {
			m.retiredHook(h.ID())
		}
		m.registry.retired(h)
		close(h.retired)
	}()
	return h.retired
}

func (m *Manager) newMetric() *imetric.FolderMetric {
	provider := imetric.New(imetric.WithMeterProvider(m.meterProvider))
	folderMetric, err := imetric.NewFolderMetric(provider.Meter())
	if err == nil {
		return folderMetric
	}

	m.logger.Warnf("failed to create folder metrics, metrics disabled: %v", err)
	folderMetric, _ = imetric.NewFolderMetric(noop.NewMeterProvider().Meter("foldersync"))
	return folderMetric
}
