package service

import (
	"context"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// TombstoneTracker remembers recently deleted record ids for a short TTL so
// a deletion is not undone by a racing in-flight download. Tombstones are
// advisory: they gate ingestion only, they are not durable deletion records.
type TombstoneTracker interface {
	// MarkDeleted records that id was just deleted locally.
	MarkDeleted(ctx context.Context, id string)

	// IsDeleted reports whether id carries an unexpired tombstone. Expired
	// entries are pruned opportunistically.
	IsDeleted(ctx context.Context, id string) bool

	// Clear drops all tombstones.
	Clear(ctx context.Context)
}

// StreamGate tracks which records are mid-generation and lets callers defer
// work until generation completes.
type StreamGate interface {
	// Begin marks id as actively streaming.
	Begin(id string)

	// End clears the streaming mark and runs callbacks registered via
	// OnEnd for id.
	End(id string)

	// IsActive reports whether id is currently streaming.
	IsActive(id string) bool

	// OnEnd registers cb to run when the stream for id ends. If no stream
	// is active for id, cb runs immediately instead of waiting forever.
	OnEnd(id string, cb func())
}

// Ingestor turns remote encrypted blobs into usable local records, or safe
// placeholders when the content cannot be recovered.
type Ingestor interface {
	// ProcessRemote ingests a single remote record against the optional
	// existing local copy. projectOverride, when non-empty, wins over both
	// the decrypted payload's project association and the local record's.
	ProcessRemote(ctx context.Context, remote models.RemoteRecord, local *models.Record, projectOverride string) models.ProcessedResult

	// ProcessBatch ingests many remote records against a prefetched map of
	// local records, skipping ids with an active tombstone.
	ProcessBatch(ctx context.Context, items []models.RemoteRecord, locals map[string]models.Record, projectOverride string) []models.ProcessedResult
}

// SyncService is the top-level reconciliation engine between the local
// record store and the remote object store.
type SyncService interface {
	// BackupRecord uploads a single record if it is eligible. Concurrent
	// calls for the same id share one in-flight upload; a record that is
	// streaming is backed up automatically once its stream ends. When no
	// credential is available the call silently no-ops.
	BackupRecord(ctx context.Context, id string) error

	// SyncAll runs a full reconciliation pass: upload unsynced records,
	// download one remote page, propagate remote deletions, and delete
	// local records absent from the fetched page (scoped to records that
	// would have appeared in it). Per-record errors are accumulated in the
	// result, not raised. A concurrent call fails fast with
	// ErrSyncInProgress.
	SyncAll(ctx context.Context) (models.SyncResult, error)

	// DeleteRecord deletes a record locally, tombstones it, and
	// best-effort deletes it remotely.
	DeleteRecord(ctx context.Context, id string) error

	// RetryDecryption re-attempts decryption of placeholder records with
	// the current key set, in bounded batches. Recovered records become
	// eligible for re-upload under the active key.
	RetryDecryption(ctx context.Context) (recovered int, err error)
}

// SyncJob is the background worker that periodically runs a full sync and
// reacts to local change events with per-record backups.
type SyncJob interface {
	// Start launches the background goroutine. A previously running job is
	// stopped first. interval defaults to 5 minutes when non-positive.
	Start(ctx context.Context, interval time.Duration)

	// Stop signals the background goroutine to exit and blocks until it
	// has fully terminated.
	Stop()
}
