// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/adapter"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/config"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/crypto"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/metrics"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/store"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// SyncDeps bundles the collaborators of the sync service.
type SyncDeps struct {
	Records    store.RecordStore
	KV         store.KVStore
	Keys       crypto.KeyManager
	Remote     adapter.RemoteStore
	Tokens     adapter.TokenSource
	Gate       StreamGate
	Tombstones TombstoneTracker
	Ingestor   Ingestor
	Logger     *logger.Logger
	Config     config.Sync
}

type inflightUpload struct {
	done chan struct{}
	err  error
}

type syncService struct {
	records    store.RecordStore
	kv         store.KVStore
	keys       crypto.KeyManager
	remote     adapter.RemoteStore
	tokens     adapter.TokenSource
	gate       StreamGate
	tombstones TombstoneTracker
	ingestor   Ingestor
	logger     *logger.Logger

	pageSize         int
	retryBatchSize   int
	minUploadSpacing time.Duration

	// syncing is the full-sync exclusivity latch.
	syncing atomic.Bool

	// mu guards inflight and lastUpload.
	mu         sync.Mutex
	inflight   map[string]*inflightUpload
	lastUpload time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService constructs a [SyncService].
func NewSyncService(deps SyncDeps) SyncService {
	return &syncService{
		records:          deps.Records,
		kv:               deps.KV,
		keys:             deps.Keys,
		remote:           deps.Remote,
		tokens:           deps.Tokens,
		gate:             deps.Gate,
		tombstones:       deps.Tombstones,
		ingestor:         deps.Ingestor,
		logger:           deps.Logger,
		pageSize:         deps.Config.PageSize,
		retryBatchSize:   deps.Config.RetryBatchSize,
		minUploadSpacing: deps.Config.MinUploadSpacing,
		inflight:         map[string]*inflightUpload{},
		now:              time.Now,
		sleep:            sleepCtx,
	}
}

// BackupRecord implements [SyncService].
func (s *syncService) BackupRecord(ctx context.Context, id string) error {
	if !s.tokens.IsAuthenticated() || !s.keys.HasKey() {
		s.logger.Debug().Str("id", id).Msg("skipping backup, no credential or key")
		return nil
	}

	if s.gate.IsActive(id) {
		s.deferUntilStreamEnds(id)
		return nil
	}

	s.mu.Lock()
	if fl, ok := s.inflight[id]; ok {
		// Another goroutine is already uploading this record; share its
		// outcome instead of doubling the network write.
		s.mu.Unlock()
		<-fl.done
		return fl.err
	}
	fl := &inflightUpload{done: make(chan struct{})}
	s.inflight[id] = fl
	s.mu.Unlock()

	fl.err = s.backupLocked(ctx, id)

	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
	close(fl.done)

	return fl.err
}

func (s *syncService) backupLocked(ctx context.Context, id string) error {
	record, err := s.records.Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		// Deleted between the trigger and now.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load record for backup %s: %w", id, err)
	}

	if !uploadEligible(&record) {
		return nil
	}

	if err = s.waitUploadSlot(ctx); err != nil {
		return err
	}

	// The stream may have started while this backup waited its turn; check
	// once more before the network write so a half-generated body never
	// reaches the server.
	if s.gate.IsActive(id) {
		s.deferUntilStreamEnds(id)
		return nil
	}

	if err = s.uploadRecord(ctx, record); err != nil {
		metrics.RecordSyncError("upload")
		return err
	}

	metrics.SyncUploadsTotal.Inc()
	return nil
}

func (s *syncService) deferUntilStreamEnds(id string) {
	s.logger.Debug().Str("id", id).Msg("record is streaming, deferring backup")
	s.gate.OnEnd(id, func() {
		if err := s.BackupRecord(context.Background(), id); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("deferred backup failed")
		}
	})
}

// uploadRecord encrypts and uploads record, then stamps the sync metadata.
// The fingerprint is taken before the upload so an edit landing mid-flight
// keeps the record dirty.
func (s *syncService) uploadRecord(ctx context.Context, record models.Record) error {
	hash := store.Fingerprint(&record)

	env, err := s.keys.Encrypt(ctx, record.ContentPayload())
	if err != nil {
		return fmt.Errorf("encrypt record %s: %w", record.ID, err)
	}
	ciphertext, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope for %s: %w", record.ID, err)
	}

	version := record.SyncVersion + 1
	meta := models.PutMetadata{UpdatedAt: record.UpdatedAt, SyncVersion: version}
	if err = s.remote.Put(ctx, record.ID, string(ciphertext), meta); err != nil {
		return fmt.Errorf("upload record %s: %w", record.ID, err)
	}

	if err = s.records.MarkAsSynced(ctx, record.ID, version, hash); err != nil {
		return err
	}

	s.logger.Debug().Str("id", record.ID).Int64("version", version).Msg("record uploaded")
	return nil
}

// waitUploadSlot enforces the minimum spacing between consecutive uploads.
func (s *syncService) waitUploadSlot(ctx context.Context) error {
	for {
		s.mu.Lock()
		wait := s.minUploadSpacing - s.now().Sub(s.lastUpload)
		if wait <= 0 {
			s.lastUpload = s.now()
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// SyncAll implements [SyncService].
func (s *syncService) SyncAll(ctx context.Context) (models.SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return models.SyncResult{}, ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	var result models.SyncResult

	if !s.tokens.IsAuthenticated() || !s.keys.HasKey() {
		s.logger.Debug().Msg("skipping full sync, no credential or key")
		return result, nil
	}

	started := s.now()
	defer func() {
		metrics.FullSyncDuration.Observe(s.now().Sub(started).Seconds())
	}()

	uploaded := s.uploadUnsynced(ctx, &result)

	page, err := s.remote.List(ctx, models.ListOptions{
		PageSize:      s.pageSize,
		InlineContent: true,
	})
	if err != nil {
		// Without a page there is no basis for ingestion or for deciding
		// what vanished remotely; stop here rather than guessing.
		metrics.RecordSyncError("list")
		result.Errors = append(result.Errors, fmt.Errorf("list remote records: %w", err))
		return result, nil
	}

	locals, err := s.localIndex(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result, nil
	}

	s.ingestPage(ctx, page, locals, uploaded, &result)
	s.propagateRemoteDeletions(ctx, locals, uploaded, &result)
	s.deleteVanished(ctx, page, locals, uploaded, &result)

	if err = s.kv.SetSyncCursor(ctx, started); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("store sync cursor: %w", err))
	}

	s.logger.Info().
		Int("uploaded", result.Uploaded).
		Int("downloaded", result.Downloaded).
		Int("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("full sync finished")

	return result, nil
}

// uploadUnsynced pushes every dirty or never-synced record and returns the set
// of ids actually uploaded in this pass.
func (s *syncService) uploadUnsynced(ctx context.Context, result *models.SyncResult) map[string]struct{} {
	uploaded := map[string]struct{}{}

	records, err := s.records.GetUnsynced(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return uploaded
	}

	for i := range records {
		record := records[i]
		if !uploadEligible(&record) || s.gate.IsActive(record.ID) {
			continue
		}

		if err = s.waitUploadSlot(ctx); err != nil {
			result.Errors = append(result.Errors, err)
			return uploaded
		}

		// A stream may have started for this record while the batch waited
		// for its slot; a half-generated body must never reach the server.
		if s.gate.IsActive(record.ID) {
			s.deferUntilStreamEnds(record.ID)
			continue
		}

		if err = s.uploadRecord(ctx, record); err != nil {
			metrics.RecordSyncError("upload")
			result.Errors = append(result.Errors, err)
			continue
		}

		metrics.SyncUploadsTotal.Inc()
		uploaded[record.ID] = struct{}{}
		result.Uploaded++
	}

	return uploaded
}

func (s *syncService) localIndex(ctx context.Context) (map[string]models.Record, error) {
	records, err := s.records.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("index local records: %w", err)
	}

	index := make(map[string]models.Record, len(records))
	for _, record := range records {
		index[record.ID] = record
	}
	return index, nil
}

// ingestPage merges one remote page into the local store. Records that are
// locally dirty, mid-stream, or just uploaded are left alone; the listing
// entry predates their local state.
func (s *syncService) ingestPage(ctx context.Context, page models.ListPage, locals map[string]models.Record, uploaded map[string]struct{}, result *models.SyncResult) {
	items := make([]models.RemoteRecord, 0, len(page.Items))
	for _, item := range page.Items {
		if s.gate.IsActive(item.ID) {
			continue
		}
		if _, ok := uploaded[item.ID]; ok {
			continue
		}
		if local, ok := locals[item.ID]; ok && !shouldIngest(item, &local) {
			continue
		}
		items = append(items, item)
	}

	for _, res := range s.ingestor.ProcessBatch(ctx, items, locals, "") {
		if res.Unchanged {
			// The ingestor kept the local record as is; nothing to persist
			// and nothing was downloaded.
			continue
		}
		if err := s.records.Save(ctx, res.Record); err != nil {
			metrics.RecordSyncError("ingest")
			result.Errors = append(result.Errors, fmt.Errorf("save ingested record %s: %w", res.Record.ID, err))
			continue
		}

		result.Downloaded++
		metrics.SyncDownloadsTotal.Inc()

		switch {
		case res.Status == models.StatusDecrypted && res.UsedFallbackKey:
			// Decrypted with a retired key; refresh the remote copy under
			// the active key so the fallback can eventually age out.
			if err := s.reuploadUnderActiveKey(ctx, res.Record.ID); err != nil {
				metrics.RecordSyncError("reencrypt")
				result.Errors = append(result.Errors, err)
			}
		case res.Status == models.StatusDecrypted || res.Status == models.StatusNoContent:
			if err := s.records.MarkAsSynced(ctx, res.Record.ID, res.Record.SyncVersion, ""); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
	}
}

// shouldIngest decides whether a listing entry may replace the local copy.
// Local edits always win, a placeholder is always worth another attempt, and
// otherwise the entry must be strictly newer than what was last synced: by
// version when the server echoes one, by updatedAt against syncedAt when it
// does not. A stale listing entry must never roll a record back.
func shouldIngest(item models.RemoteRecord, local *models.Record) bool {
	if local.LocallyModified {
		return false
	}
	if local.IsPlaceholder() {
		return true
	}
	if item.SyncVersion > 0 {
		return item.SyncVersion > local.SyncVersion
	}
	if local.SyncedAt != nil {
		if ts, ok := parseRemoteTime(item.UpdatedAt); ok {
			return ts.After(*local.SyncedAt)
		}
	}
	return true
}

func (s *syncService) reuploadUnderActiveKey(ctx context.Context, id string) error {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load record for re-encryption %s: %w", id, err)
	}
	if err = s.waitUploadSlot(ctx); err != nil {
		return err
	}
	return s.uploadRecord(ctx, record)
}

// propagateRemoteDeletions applies deletions reported by the server since the
// previous pass. Locally modified records survive, as do records uploaded in
// this pass: their upload already resurrected them remotely.
func (s *syncService) propagateRemoteDeletions(ctx context.Context, locals map[string]models.Record, uploaded map[string]struct{}, result *models.SyncResult) {
	cursor, ok, err := s.kv.SyncCursor(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return
	}
	if !ok {
		// First pass on this device; the cursor written at the end of this
		// pass anchors the next one.
		return
	}

	ids, err := s.remote.ListDeletedSince(ctx, cursor)
	if err != nil {
		metrics.RecordSyncError("deletions")
		result.Errors = append(result.Errors, fmt.Errorf("list remote deletions: %w", err))
		return
	}

	for _, id := range ids {
		local, exists := locals[id]
		if !exists || local.IsLocalOnly || local.LocallyModified {
			continue
		}
		if _, ok := uploaded[id]; ok {
			continue
		}

		if err = s.records.Delete(ctx, id); err != nil {
			metrics.RecordSyncError("delete")
			result.Errors = append(result.Errors, err)
			continue
		}

		s.tombstones.MarkDeleted(ctx, id)
		delete(locals, id)
		result.Deleted++
		metrics.SyncDeletesTotal.Inc()
	}
}

// deleteVanished removes synced local records that no longer appear remotely.
// With further pages outstanding the check is scoped to ids that would have
// sorted into the fetched page; anything beyond it simply was not observed.
func (s *syncService) deleteVanished(ctx context.Context, page models.ListPage, locals map[string]models.Record, uploaded map[string]struct{}, result *models.SyncResult) {
	if len(page.Items) == 0 && page.NextPageToken != "" {
		return
	}

	remoteIDs := make(map[string]struct{}, len(page.Items))
	var lastID string
	for _, item := range page.Items {
		remoteIDs[item.ID] = struct{}{}
		if item.ID > lastID {
			lastID = item.ID
		}
	}

	for id, local := range locals {
		if local.IsLocalOnly || local.LocallyModified || local.SyncedAt == nil {
			continue
		}
		if _, ok := remoteIDs[id]; ok {
			continue
		}
		if _, ok := uploaded[id]; ok {
			// Just uploaded in this pass; the listing may not reflect it yet.
			continue
		}
		if page.NextPageToken != "" && id > lastID {
			continue // beyond the fetched page, presence unknown
		}

		if err := s.records.Delete(ctx, id); err != nil {
			metrics.RecordSyncError("delete")
			result.Errors = append(result.Errors, err)
			continue
		}

		s.tombstones.MarkDeleted(ctx, id)
		result.Deleted++
		metrics.SyncDeletesTotal.Inc()
	}
}

// DeleteRecord implements [SyncService].
func (s *syncService) DeleteRecord(ctx context.Context, id string) error {
	record, err := s.records.Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return fmt.Errorf("load record for delete %s: %w", id, err)
	}
	localOnly := err == nil && record.IsLocalOnly

	// Tombstone before deleting so a download racing this call cannot
	// resurrect the record in the gap.
	s.tombstones.MarkDeleted(ctx, id)

	if err = s.records.Delete(ctx, id); err != nil {
		return err
	}

	if localOnly || !s.tokens.IsAuthenticated() {
		return nil
	}

	if err = s.remote.Delete(ctx, id); err != nil && !errors.Is(err, adapter.ErrNotFound) {
		// Remote cleanup is best-effort; the server's own deletion listing
		// reconciles stragglers eventually.
		s.logger.Warn().Err(err).Str("id", id).Msg("remote delete failed")
	}

	return nil
}

// RetryDecryption implements [SyncService].
func (s *syncService) RetryDecryption(ctx context.Context) (int, error) {
	candidates, err := s.records.GetWithEncryptedData(ctx)
	if err != nil {
		return 0, fmt.Errorf("load decrypt-retry candidates: %w", err)
	}

	batchSize := s.retryBatchSize
	if batchSize <= 0 {
		batchSize = len(candidates)
	}

	recovered := 0
	for start := 0; start < len(candidates); start += batchSize {
		if err = ctx.Err(); err != nil {
			return recovered, err
		}

		end := min(start+batchSize, len(candidates))
		for i := start; i < end; i++ {
			if s.retryOne(ctx, candidates[i]) {
				recovered++
			}
		}
	}

	if recovered > 0 {
		s.logger.Info().Int("recovered", recovered).Msg("recovered records after key change")
	}
	return recovered, nil
}

// retryOne re-attempts decryption of one placeholder with the current key set.
func (s *syncService) retryOne(ctx context.Context, record models.Record) bool {
	var env models.EncryptedEnvelope
	if err := json.Unmarshal([]byte(record.EncryptedData), &env); err != nil {
		metrics.RecordDecryptRetry("corrupted")
		return false
	}

	var payload models.Payload
	_, err := s.keys.Decrypt(ctx, env, &payload)
	switch {
	case errors.Is(err, crypto.ErrDataCorrupted):
		metrics.RecordDecryptRetry("corrupted")
		record.DataCorrupted = true
		record.DecryptionFailed = false
		if saveErr := s.records.Save(ctx, record); saveErr != nil {
			s.logger.Warn().Err(saveErr).Str("id", record.ID).Msg("failed to mark record corrupted")
		}
		return false
	case err != nil:
		metrics.RecordDecryptRetry("failed")
		return false
	}

	record.Title = payload.Title
	if record.Title == "" {
		record.Title = placeholderTitleUntitled
	}
	if payload.ProjectID != "" {
		record.ProjectID = payload.ProjectID
	}
	record.Messages = payload.Messages
	record.DecryptionFailed = false
	record.DataCorrupted = false
	record.EncryptedData = ""
	// Recovered content goes back up under the active key; the dirty flag
	// makes the next sync pass handle it.
	record.LocallyModified = true

	if err = s.records.Save(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("id", record.ID).Msg("failed to save recovered record")
		metrics.RecordDecryptRetry("failed")
		return false
	}

	metrics.RecordDecryptRetry("recovered")
	return true
}

// uploadEligible reports whether record may be written to the remote store.
// Placeholders and blanks would clobber good data; local-only records opted
// out; clean synced records have nothing new to say.
func uploadEligible(record *models.Record) bool {
	if record.IsLocalOnly || record.IsPlaceholder() || record.IsBlank() {
		return false
	}
	return record.LocallyModified || record.SyncedAt == nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
