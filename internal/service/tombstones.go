// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/store"
)

// tombstoneTTL bounds how long a deletion suppresses re-ingestion of the same
// id. Long enough to cover an in-flight download racing the delete, short
// enough that the set never grows without bound.
const tombstoneTTL = 5 * time.Minute

type tombstoneTracker struct {
	kv     store.KVStore
	logger *logger.Logger

	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	loaded  bool
	entries map[string]time.Time
}

// NewTombstoneTracker constructs a [TombstoneTracker] persisted in the store's
// keyed-value area so tombstones survive a restart within their TTL.
func NewTombstoneTracker(kv store.KVStore, log *logger.Logger) TombstoneTracker {
	return &tombstoneTracker{
		kv:     kv,
		logger: log,
		ttl:    tombstoneTTL,
		now:    time.Now,
	}
}

// MarkDeleted implements [TombstoneTracker].
func (t *tombstoneTracker) MarkDeleted(ctx context.Context, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loadLocked(ctx)
	t.pruneLocked()
	t.entries[id] = t.now().UTC()
	t.persistLocked(ctx)
}

// IsDeleted implements [TombstoneTracker].
func (t *tombstoneTracker) IsDeleted(ctx context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loadLocked(ctx)
	if t.pruneLocked() {
		t.persistLocked(ctx)
	}

	_, ok := t.entries[id]
	return ok
}

// Clear implements [TombstoneTracker].
func (t *tombstoneTracker) Clear(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loaded = true
	t.entries = map[string]time.Time{}
	t.persistLocked(ctx)
}

func (t *tombstoneTracker) loadLocked(ctx context.Context) {
	if t.loaded {
		return
	}

	entries, err := t.kv.LoadTombstones(ctx)
	if err != nil {
		// Tombstones are an ingestion guard, not user data; start empty
		// rather than failing the caller.
		t.logger.Warn().Err(err).Msg("failed to load tombstones, starting empty")
		entries = map[string]time.Time{}
	}
	if entries == nil {
		entries = map[string]time.Time{}
	}

	t.entries = entries
	t.loaded = true
}

func (t *tombstoneTracker) pruneLocked() bool {
	cutoff := t.now().UTC().Add(-t.ttl)

	pruned := false
	for id, at := range t.entries {
		if at.Before(cutoff) {
			delete(t.entries, id)
			pruned = true
		}
	}
	return pruned
}

func (t *tombstoneTracker) persistLocked(ctx context.Context) {
	if err := t.kv.SaveTombstones(ctx, t.entries); err != nil {
		t.logger.Warn().Err(err).Msg("failed to persist tombstones")
	}
}
