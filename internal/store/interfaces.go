package store

import (
	"context"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// RecordStore is the transactional, per-record store of conversation records
// plus sync metadata. All mutation goes through a single serialized write
// path per store instance, so concurrent callers never interleave
// read-modify-write cycles.
type RecordStore interface {
	// Save merges record with any existing copy and persists the result.
	// Merge rules: SyncedAt/SyncVersion are preserved from the existing
	// record unless the incoming one carries its own values;
	// LocallyModified becomes existing.LocallyModified OR "content
	// fingerprint changed", except failed-decryption placeholders which
	// are always forced clean. Blank records are rejected with
	// ErrBlankRecord.
	Save(ctx context.Context, record models.Record) error

	// Get returns the stored record. Refreshes the record's last-accessed
	// marker best-effort; a failure there is logged, never returned.
	// Returns ErrRecordNotFound when the id is absent.
	Get(ctx context.Context, id string) (models.Record, error)

	// GetAll returns all records newest-first (record ids already sort
	// this way).
	GetAll(ctx context.Context) ([]models.Record, error)

	// GetUnsynced returns records with LocallyModified set or no SyncedAt.
	GetUnsynced(ctx context.Context) ([]models.Record, error)

	// GetWithEncryptedData returns the retry-after-key-rotation candidate
	// set: records with DecryptionFailed and retained ciphertext.
	GetWithEncryptedData(ctx context.Context) ([]models.Record, error)

	// MarkAsSynced stamps the freshest stored copy of id with
	// syncedAt=now and syncVersion=version. uploadedHash is the content
	// fingerprint that was actually uploaded: LocallyModified stays true
	// when the current fingerprint differs, so an edit made while the
	// upload was in flight is picked up by the next sync instead of being
	// silently discarded.
	MarkAsSynced(ctx context.Context, id string, version int64, uploadedHash string) error

	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteAllExcept bulk-deletes records; with keepLocalOnly set,
	// records flagged IsLocalOnly survive. Returns the number deleted.
	DeleteAllExcept(ctx context.Context, keepLocalOnly bool) (int64, error)

	// Subscribe registers a change-event inbox. The returned cancel
	// function unregisters it and closes the channel. Publishing never
	// blocks; a slow subscriber drops events.
	Subscribe() (<-chan models.ChangeEvent, func())
}

// KVStore is the small keyed-value area holding the active key, key history,
// tombstone set, and sync cursor. Each value is independently readable and
// writable.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// LoadKeyBundle / SaveKeyBundle / ClearKeyBundle implement
	// crypto.KeyStore on top of the kv area.
	LoadKeyBundle(ctx context.Context) (models.KeyBundle, error)
	SaveKeyBundle(ctx context.Context, bundle models.KeyBundle) error
	ClearKeyBundle(ctx context.Context) error

	// LoadTombstones / SaveTombstones persist the recently-deleted id set
	// as id -> deletion time. TTL logic is applied by the reader.
	LoadTombstones(ctx context.Context) (map[string]time.Time, error)
	SaveTombstones(ctx context.Context, tombstones map[string]time.Time) error

	// SyncCursor / SetSyncCursor track the high-water mark used for
	// remote-deletion propagation.
	SyncCursor(ctx context.Context) (time.Time, bool, error)
	SetSyncCursor(ctx context.Context, at time.Time) error
}
