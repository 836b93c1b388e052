// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/crypto"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/utils"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// Placeholder titles shown for records whose body could not be recovered.
const (
	placeholderTitleEncrypted = "Encrypted"
	placeholderTitleUntitled  = "Untitled"
)

type ingestor struct {
	keys       crypto.KeyManager
	tombstones TombstoneTracker
	logger     *logger.Logger

	now func() time.Time
}

// NewIngestor constructs an [Ingestor].
func NewIngestor(keys crypto.KeyManager, tombstones TombstoneTracker, log *logger.Logger) Ingestor {
	return &ingestor{
		keys:       keys,
		tombstones: tombstones,
		logger:     log,
		now:        time.Now,
	}
}

// ProcessRemote implements [Ingestor].
func (i *ingestor) ProcessRemote(ctx context.Context, remote models.RemoteRecord, local *models.Record, projectOverride string) models.ProcessedResult {
	if remote.Content == "" {
		return i.noContent(remote, local, projectOverride)
	}

	var env models.EncryptedEnvelope
	if err := json.Unmarshal([]byte(remote.Content), &env); err != nil || env.Ciphertext == "" {
		i.logger.Warn().Str("id", remote.ID).Msg("remote content is not an encrypted envelope")
		return i.unrecoverable(remote, local, models.StatusCorrupted)
	}

	var payload models.Payload
	usedFallback, err := i.keys.Decrypt(ctx, env, &payload)
	switch {
	case err == nil:
		return i.decrypted(remote, local, payload, projectOverride, usedFallback)
	case errors.Is(err, crypto.ErrDataCorrupted):
		i.logger.Warn().Err(err).Str("id", remote.ID).Msg("remote record is corrupted")
		return i.unrecoverable(remote, local, models.StatusCorrupted)
	default:
		i.logger.Debug().Err(err).Str("id", remote.ID).Msg("no key opened remote record")
		return i.unrecoverable(remote, local, models.StatusDecryptionFailed)
	}
}

// ProcessBatch implements [Ingestor].
func (i *ingestor) ProcessBatch(ctx context.Context, items []models.RemoteRecord, locals map[string]models.Record, projectOverride string) []models.ProcessedResult {
	results := make([]models.ProcessedResult, 0, len(items))
	for _, item := range items {
		if i.tombstones.IsDeleted(ctx, item.ID) {
			i.logger.Debug().Str("id", item.ID).Msg("skipping tombstoned remote record")
			continue
		}

		var local *models.Record
		if l, ok := locals[item.ID]; ok {
			local = &l
		}

		results = append(results, i.ProcessRemote(ctx, item, local, projectOverride))
	}
	return results
}

func (i *ingestor) decrypted(remote models.RemoteRecord, local *models.Record, payload models.Payload, projectOverride string, usedFallback bool) models.ProcessedResult {
	now := i.now().UTC()

	record := models.Record{
		ID:          remote.ID,
		Title:       payload.Title,
		ProjectID:   resolveProject(projectOverride, payload.ProjectID, local),
		Messages:    payload.Messages,
		CreatedAt:   payload.CreatedAt,
		UpdatedAt:   payload.UpdatedAt,
		SyncVersion: remote.SyncVersion,
		SyncedAt:    &now,
	}
	if record.Title == "" {
		record.Title = placeholderTitleUntitled
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = i.normalizeTime(remote.ID, remote.CreatedAt)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = i.normalizeTime(remote.ID, remote.UpdatedAt)
	}
	if local != nil {
		record.IsLocalOnly = local.IsLocalOnly
	}

	return models.ProcessedResult{
		Record:          record,
		Status:          models.StatusDecrypted,
		UsedFallbackKey: usedFallback,
	}
}

// unrecoverable builds the result for a remote record whose body could not be
// recovered. A local copy with readable content always wins over a
// placeholder; the placeholder is only materialized when there is nothing
// better to show.
func (i *ingestor) unrecoverable(remote models.RemoteRecord, local *models.Record, status models.ProcessedStatus) models.ProcessedResult {
	if local != nil && !local.IsPlaceholder() && !local.IsBlank() {
		return models.ProcessedResult{Record: *local, Status: status, Unchanged: true}
	}

	now := i.now().UTC()
	record := models.Record{
		ID:            remote.ID,
		Title:         placeholderTitleEncrypted,
		CreatedAt:     i.normalizeTime(remote.ID, remote.CreatedAt),
		UpdatedAt:     i.normalizeTime(remote.ID, remote.UpdatedAt),
		SyncVersion:   remote.SyncVersion,
		SyncedAt:      &now,
		EncryptedData: remote.Content,
	}

	switch status {
	case models.StatusCorrupted:
		record.DataCorrupted = true
	default:
		record.DecryptionFailed = true
	}
	if local != nil {
		record.IsLocalOnly = local.IsLocalOnly
	}

	return models.ProcessedResult{Record: record, Status: status}
}

func (i *ingestor) noContent(remote models.RemoteRecord, local *models.Record, projectOverride string) models.ProcessedResult {
	if local != nil && !local.IsBlank() {
		return models.ProcessedResult{Record: *local, Status: models.StatusNoContent, Unchanged: true}
	}

	now := i.now().UTC()
	record := models.Record{
		ID:          remote.ID,
		Title:       placeholderTitleUntitled,
		ProjectID:   resolveProject(projectOverride, "", local),
		CreatedAt:   i.normalizeTime(remote.ID, remote.CreatedAt),
		UpdatedAt:   i.normalizeTime(remote.ID, remote.UpdatedAt),
		SyncVersion: remote.SyncVersion,
		SyncedAt:    &now,
	}

	return models.ProcessedResult{Record: record, Status: models.StatusNoContent}
}

// normalizeTime turns a remote timestamp string into a concrete time. The
// remote store has historically emitted both RFC 3339 and epoch-millisecond
// forms; when neither parses, the creation time encoded in the record id is
// the next best source, and the current time the last resort.
func (i *ingestor) normalizeTime(id, raw string) time.Time {
	if ts, ok := parseRemoteTime(raw); ok {
		return ts
	}
	if ts, err := utils.TimeFromRecordID(id); err == nil {
		return ts
	}
	return i.now().UTC()
}

func parseRemoteTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}

	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC(), true
	}

	return time.Time{}, false
}

// resolveProject picks the project association: an explicit override wins,
// then the decrypted payload, then whatever the local copy already had.
func resolveProject(override, fromPayload string, local *models.Record) string {
	if override != "" {
		return override
	}
	if fromPayload != "" {
		return fromPayload
	}
	if local != nil {
		return local.ProjectID
	}
	return ""
}
