// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

type recordStore struct {
	*DB
	logger *logger.Logger

	// saveMu is the mutation queue: every read-modify-write path takes it,
	// so concurrent saves never interleave. A failed write releases the
	// lock normally and does not poison later writes.
	saveMu sync.Mutex

	hub *eventHub
	now func() time.Time
}

// NewRecordStore constructs a sqlite-backed [RecordStore].
func NewRecordStore(db *DB, log *logger.Logger) RecordStore {
	return &recordStore{
		DB:     db,
		logger: log,
		hub:    newEventHub(),
		now:    time.Now,
	}
}

// Save implements [RecordStore].
func (s *recordStore) Save(ctx context.Context, record models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.IsBlank() {
		return fmt.Errorf("%w (id=%s)", ErrBlankRecord, record.ID)
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	existing, err := s.getLocked(ctx, record.ID)
	switch {
	case err == nil:
		record = mergeRecords(existing, record)
	case errors.Is(err, ErrRecordNotFound):
		// First save of this id.
	default:
		return fmt.Errorf("load existing record %s: %w", record.ID, err)
	}

	if record.IsPlaceholder() {
		// A record whose content could not be recovered must never look
		// uploadable or carry a body that could overwrite remote data.
		record.Messages = nil
		record.LocallyModified = false
	}

	if err = s.upsertLocked(ctx, &record); err != nil {
		return err
	}

	s.hub.publish(models.ChangeEvent{Reason: models.ChangeSave, IDs: []string{record.ID}})
	return nil
}

// mergeRecords applies the save merge rules on top of the stored copy.
func mergeRecords(existing, incoming models.Record) models.Record {
	if incoming.SyncedAt == nil {
		incoming.SyncedAt = existing.SyncedAt
	}
	if incoming.SyncVersion == 0 {
		incoming.SyncVersion = existing.SyncVersion
	}
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = existing.CreatedAt
	}

	if !incoming.IsPlaceholder() {
		incoming.LocallyModified = existing.LocallyModified ||
			Fingerprint(&existing) != Fingerprint(&incoming)
	}

	return incoming
}

// Get implements [RecordStore].
func (s *recordStore) Get(ctx context.Context, id string) (models.Record, error) {
	record, err := s.getLocked(ctx, id)
	if err != nil {
		return models.Record{}, err
	}

	// Best-effort access marker; a failure is log noise, not a caller error.
	if _, err = s.DB.ExecContext(ctx, touchLastAccessed, s.now().UTC(), id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("failed to refresh last-accessed marker")
	}

	return record, nil
}

// GetAll implements [RecordStore].
func (s *recordStore) GetAll(ctx context.Context) ([]models.Record, error) {
	return s.queryRecords(ctx, getAllRecords)
}

// GetUnsynced implements [RecordStore].
func (s *recordStore) GetUnsynced(ctx context.Context) ([]models.Record, error) {
	return s.queryRecords(ctx, getUnsyncedRecords)
}

// GetWithEncryptedData implements [RecordStore].
func (s *recordStore) GetWithEncryptedData(ctx context.Context) ([]models.Record, error) {
	return s.queryRecords(ctx, getEncryptedRecords)
}

// MarkAsSynced implements [RecordStore].
func (s *recordStore) MarkAsSynced(ctx context.Context, id string, version int64, uploadedHash string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	current, err := s.getLocked(ctx, id)
	if err != nil {
		return fmt.Errorf("load record for mark-as-synced %s: %w", id, err)
	}

	// The record may have been edited while the upload was in flight; the
	// fresh fingerprint decides whether it is still dirty.
	stillModified := uploadedHash != "" && Fingerprint(&current) != uploadedHash

	if _, err = s.DB.ExecContext(ctx, markSynced, s.now().UTC(), version, stillModified, id); err != nil {
		return fmt.Errorf("mark record as synced %s: %w", id, err)
	}

	s.hub.publish(models.ChangeEvent{Reason: models.ChangeSync, IDs: []string{id}})
	return nil
}

// Delete implements [RecordStore].
func (s *recordStore) Delete(ctx context.Context, id string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if _, err := s.DB.ExecContext(ctx, deleteRecord, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}

	s.hub.publish(models.ChangeEvent{Reason: models.ChangeDelete, IDs: []string{id}})
	return nil
}

// DeleteAllExcept implements [RecordStore].
func (s *recordStore) DeleteAllExcept(ctx context.Context, keepLocalOnly bool) (int64, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	query := listAllIDs
	if keepLocalOnly {
		query = listSyncableIDs
	}

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("list records for bulk delete: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate record ids: %w", err)
	}

	var deleted int64
	for _, id := range ids {
		if _, err = s.DB.ExecContext(ctx, deleteByID, id); err != nil {
			return deleted, fmt.Errorf("bulk delete record %s: %w", id, err)
		}
		deleted++
	}

	if len(ids) > 0 {
		s.hub.publish(models.ChangeEvent{Reason: models.ChangeDelete, IDs: ids})
	}
	return deleted, nil
}

// Subscribe implements [RecordStore].
func (s *recordStore) Subscribe() (<-chan models.ChangeEvent, func()) {
	return s.hub.subscribe()
}

func (s *recordStore) getLocked(ctx context.Context, id string) (models.Record, error) {
	row := s.DB.QueryRowContext(ctx, getRecord, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("%w (id=%s)", ErrRecordNotFound, id)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("scan record row: %w", err)
	}

	return record, nil
}

func (s *recordStore) upsertLocked(ctx context.Context, record *models.Record) error {
	messages, err := json.Marshal(record.Messages)
	if err != nil {
		return fmt.Errorf("encode messages for %s: %w", record.ID, err)
	}

	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	var syncedAt any
	if record.SyncedAt != nil {
		syncedAt = record.SyncedAt.UTC()
	}

	_, err = s.DB.ExecContext(ctx, upsertRecord,
		record.ID,
		record.Title,
		record.ProjectID,
		string(messages),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
		record.SyncVersion,
		syncedAt,
		record.LocallyModified,
		record.IsLocalOnly,
		record.DecryptionFailed,
		record.DataCorrupted,
		record.EncryptedData,
		Fingerprint(record),
	)
	if err != nil {
		s.logger.Err(err).Str("id", record.ID).Msg("failed to execute upsert for record")
		return fmt.Errorf("save record (id=%s): %w", record.ID, err)
	}

	return nil
}

func (s *recordStore) queryRecords(ctx context.Context, query string) ([]models.Record, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		s.logger.Err(err).Msg("failed to execute record query")
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan record row: %w", scanErr)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.Record, error) {
	var (
		record   models.Record
		messages string
		syncedAt sql.NullTime
		hash     string
	)

	err := row.Scan(
		&record.ID,
		&record.Title,
		&record.ProjectID,
		&messages,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.SyncVersion,
		&syncedAt,
		&record.LocallyModified,
		&record.IsLocalOnly,
		&record.DecryptionFailed,
		&record.DataCorrupted,
		&record.EncryptedData,
		&hash,
	)
	if err != nil {
		return models.Record{}, err
	}

	if syncedAt.Valid {
		t := syncedAt.Time
		record.SyncedAt = &t
	}
	if messages != "" {
		if err = json.Unmarshal([]byte(messages), &record.Messages); err != nil {
			return models.Record{}, fmt.Errorf("decode messages: %w", err)
		}
	}

	return record, nil
}
