// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// Keys of the keyed-value area. Each is independently readable and writable.
const (
	kvEncryptionKey = "encryption_key"
	kvKeyHistory    = "key_history"
	kvTombstones    = "tombstones"
	kvSyncCursor    = "sync_cursor"
)

type kvStore struct {
	*DB
	logger *logger.Logger
}

// NewKVStore constructs the sqlite-backed keyed-value area.
func NewKVStore(db *DB, log *logger.Logger) KVStore {
	return &kvStore{DB: db, logger: log}
}

// Get implements [KVStore].
func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, getKV, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements [KVStore].
func (s *kvStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.DB.ExecContext(ctx, upsertKV, key, value); err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}
	return nil
}

// Delete implements [KVStore].
func (s *kvStore) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, deleteKV, key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}

// LoadKeyBundle implements [KVStore] (and crypto.KeyStore). A device with no
// persisted keys returns an empty bundle, not an error.
func (s *kvStore) LoadKeyBundle(ctx context.Context) (models.KeyBundle, error) {
	var bundle models.KeyBundle

	active, ok, err := s.Get(ctx, kvEncryptionKey)
	if err != nil {
		return models.KeyBundle{}, err
	}
	if ok {
		bundle.Active = active
	}

	history, ok, err := s.Get(ctx, kvKeyHistory)
	if err != nil {
		return models.KeyBundle{}, err
	}
	if ok && history != "" {
		if err = json.Unmarshal([]byte(history), &bundle.History); err != nil {
			return models.KeyBundle{}, fmt.Errorf("decode key history: %w", err)
		}
	}

	return bundle, nil
}

// SaveKeyBundle implements [KVStore] (and crypto.KeyStore). Both values are
// written in one transaction so a crash cannot persist an active key whose
// predecessor is missing from the fallback history.
func (s *kvStore) SaveKeyBundle(ctx context.Context, bundle models.KeyBundle) error {
	history, err := json.Marshal(bundle.History)
	if err != nil {
		return fmt.Errorf("encode key history: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin key bundle tx: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, upsertKV, kvEncryptionKey, bundle.Active); err != nil {
		return fmt.Errorf("persist active key: %w", err)
	}
	if _, err = tx.ExecContext(ctx, upsertKV, kvKeyHistory, string(history)); err != nil {
		return fmt.Errorf("persist key history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit key bundle: %w", err)
	}
	return nil
}

// ClearKeyBundle implements [KVStore] (and crypto.KeyStore).
func (s *kvStore) ClearKeyBundle(ctx context.Context) error {
	if err := s.Delete(ctx, kvEncryptionKey); err != nil {
		return err
	}
	return s.Delete(ctx, kvKeyHistory)
}

// LoadTombstones implements [KVStore].
func (s *kvStore) LoadTombstones(ctx context.Context) (map[string]time.Time, error) {
	raw, ok, err := s.Get(ctx, kvTombstones)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return map[string]time.Time{}, nil
	}

	tombstones := make(map[string]time.Time)
	if err = json.Unmarshal([]byte(raw), &tombstones); err != nil {
		return nil, fmt.Errorf("decode tombstones: %w", err)
	}
	return tombstones, nil
}

// SaveTombstones implements [KVStore].
func (s *kvStore) SaveTombstones(ctx context.Context, tombstones map[string]time.Time) error {
	raw, err := json.Marshal(tombstones)
	if err != nil {
		return fmt.Errorf("encode tombstones: %w", err)
	}
	return s.Set(ctx, kvTombstones, string(raw))
}

// SyncCursor implements [KVStore].
func (s *kvStore) SyncCursor(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := s.Get(ctx, kvSyncCursor)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	at, parseErr := time.Parse(time.RFC3339Nano, raw)
	if parseErr != nil {
		// An unreadable cursor only widens the next deletion scan; log and
		// pretend it was never set.
		s.logger.Warn().Err(parseErr).Msg("discarding unparseable sync cursor")
		return time.Time{}, false, nil
	}

	return at, true, nil
}

// SetSyncCursor implements [KVStore].
func (s *kvStore) SetSyncCursor(ctx context.Context, at time.Time) error {
	return s.Set(ctx, kvSyncCursor, at.UTC().Format(time.RFC3339Nano))
}
