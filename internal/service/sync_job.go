// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/store"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

const defaultSyncInterval = 5 * time.Minute

type syncJob struct {
	svc     SyncService
	records store.RecordStore
	logger  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncJob constructs a [SyncJob] driving svc on a timer and on local
// change events published by records.
func NewSyncJob(svc SyncService, records store.RecordStore, log *logger.Logger) SyncJob {
	return &syncJob{
		svc:     svc,
		records: records,
		logger:  log,
	}
}

// Start implements [SyncJob].
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	j.Stop()

	if interval <= 0 {
		interval = defaultSyncInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	j.mu.Lock()
	j.cancel = cancel
	j.done = done
	j.mu.Unlock()

	events, unsubscribe := j.records.Subscribe()

	go func() {
		defer close(done)
		defer unsubscribe()
		j.run(ctx, interval, events)
	}()
}

// Stop implements [SyncJob].
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *syncJob) run(ctx context.Context, interval time.Duration, events <-chan models.ChangeEvent) {
	j.logger.Info().Dur("interval", interval).Msg("sync job started")

	timer := time.NewTimer(jitter(interval))
	defer timer.Stop()

	j.fullSync(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("sync job stopped")
			return
		case <-timer.C:
			j.fullSync(ctx)
			timer.Reset(jitter(interval))
		case event, ok := <-events:
			if !ok {
				return
			}
			j.handleEvent(ctx, event)
		}
	}
}

// jitter spreads scheduled syncs by up to 10% so a fleet of devices started
// together does not hit the server in lockstep.
func jitter(interval time.Duration) time.Duration {
	return interval + time.Duration(rand.Int63n(int64(interval/10+1)))
}

func (j *syncJob) fullSync(ctx context.Context) {
	result, err := j.svc.SyncAll(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return
	}
	if err != nil {
		j.logger.Warn().Err(err).Msg("scheduled full sync failed")
		return
	}
	for _, syncErr := range result.Errors {
		j.logger.Warn().Err(syncErr).Msg("full sync record error")
	}
}

// handleEvent backs up records touched by a local save. Sync-driven and
// delete events carry nothing to upload; paginate events only shuffle
// already-synced records.
func (j *syncJob) handleEvent(ctx context.Context, event models.ChangeEvent) {
	if event.Reason != models.ChangeSave {
		return
	}

	for _, id := range event.IDs {
		record, err := j.records.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrRecordNotFound) {
				j.logger.Warn().Err(err).Str("id", id).Msg("failed to load changed record")
			}
			continue
		}
		if !record.LocallyModified && record.SyncedAt != nil {
			continue
		}

		if err = j.svc.BackupRecord(ctx, id); err != nil {
			j.logger.Warn().Err(err).Str("id", id).Msg("change-driven backup failed")
		}
	}
}
