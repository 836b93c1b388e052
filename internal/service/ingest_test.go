package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/crypto"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/store"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/utils"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

type ingestEnv struct {
	ingestor   Ingestor
	keys       crypto.KeyManager
	tombstones TombstoneTracker
}

func newIngestEnv(t *testing.T) *ingestEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	kv := store.NewKVStore(db, log)

	keys, err := crypto.NewKeyManager(ctx, kv, log)
	require.NoError(t, err)
	key, err := keys.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, keys.SetKey(ctx, key))

	tombstones := NewTombstoneTracker(kv, log)
	return &ingestEnv{
		ingestor:   NewIngestor(keys, tombstones, log),
		keys:       keys,
		tombstones: tombstones,
	}
}

func (e *ingestEnv) sealed(t *testing.T, id string, payload models.Payload) models.RemoteRecord {
	t.Helper()
	env, err := e.keys.Encrypt(context.Background(), payload)
	require.NoError(t, err)
	content, err := json.Marshal(env)
	require.NoError(t, err)
	return models.RemoteRecord{ID: id, Content: string(content)}
}

func TestProcessRemote_Decrypted(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	remote := e.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{
		Title:     "budget",
		ProjectID: "proj-payload",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "numbers?"}},
	})
	remote.UpdatedAt = "2025-06-01T10:00:00Z"
	remote.SyncVersion = 4

	result := e.ingestor.ProcessRemote(ctx, remote, nil, "")
	assert.Equal(t, models.StatusDecrypted, result.Status)
	assert.False(t, result.UsedFallbackKey)
	assert.Equal(t, "budget", result.Record.Title)
	assert.Equal(t, "proj-payload", result.Record.ProjectID)
	assert.Equal(t, int64(4), result.Record.SyncVersion)
	require.NotNil(t, result.Record.SyncedAt)
	require.Len(t, result.Record.Messages, 1)
}

func TestProcessRemote_FallbackKeyFlagged(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	remote := e.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "old sealing"})

	// Rotate: the sealing key becomes a fallback.
	next, err := e.keys.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, e.keys.SetKey(ctx, next))

	result := e.ingestor.ProcessRemote(ctx, remote, nil, "")
	assert.Equal(t, models.StatusDecrypted, result.Status)
	assert.True(t, result.UsedFallbackKey)
}

func TestProcessRemote_ProjectPriority(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	remote := e.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "x", ProjectID: "proj-payload"})
	local := &models.Record{ID: remote.ID, Title: "x", ProjectID: "proj-local"}

	// An explicit override beats the payload.
	result := e.ingestor.ProcessRemote(ctx, remote, local, "proj-override")
	assert.Equal(t, "proj-override", result.Record.ProjectID)

	// The payload beats the local copy.
	result = e.ingestor.ProcessRemote(ctx, remote, local, "")
	assert.Equal(t, "proj-payload", result.Record.ProjectID)

	// The local copy fills in when nothing else knows the project.
	bare := e.sealed(t, remote.ID, models.Payload{Title: "x"})
	result = e.ingestor.ProcessRemote(ctx, bare, local, "")
	assert.Equal(t, "proj-local", result.Record.ProjectID)
}

func TestProcessRemote_TimestampNormalization(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	// Epoch milliseconds.
	remote := e.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "x"})
	remote.CreatedAt = "1717243200000" // 2024-06-01T12:00:00Z
	result := e.ingestor.ProcessRemote(ctx, remote, nil, "")
	assert.True(t, result.Record.CreatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))

	// RFC 3339.
	remote.CreatedAt = "2024-06-02T12:00:00Z"
	result = e.ingestor.ProcessRemote(ctx, remote, nil, "")
	assert.True(t, result.Record.CreatedAt.Equal(time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)))

	// Unparseable: fall back to the time encoded in the record id.
	createdAt := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	idBacked := e.sealed(t, utils.NewRecordID(createdAt), models.Payload{Title: "x"})
	idBacked.CreatedAt = "garbage"
	result = e.ingestor.ProcessRemote(ctx, idBacked, nil, "")
	assert.True(t, result.Record.CreatedAt.Equal(createdAt))
}

func TestProcessRemote_DecryptionFailurePlaceholder(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	foreign := newIngestEnv(t)
	remote := foreign.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "unreachable"})

	result := e.ingestor.ProcessRemote(ctx, remote, nil, "")
	assert.Equal(t, models.StatusDecryptionFailed, result.Status)
	assert.Equal(t, "Encrypted", result.Record.Title)
	assert.True(t, result.Record.DecryptionFailed)
	assert.Equal(t, remote.Content, result.Record.EncryptedData, "ciphertext retained for retry after a key change")
	assert.True(t, result.Record.IsPlaceholder())
}

func TestProcessRemote_LocalContentBeatsPlaceholder(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	foreign := newIngestEnv(t)
	remote := foreign.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "unreachable"})

	local := &models.Record{
		ID:       remote.ID,
		Title:    "readable local copy",
		Messages: []models.Message{{Role: models.RoleUser, Content: "still here"}},
	}

	result := e.ingestor.ProcessRemote(ctx, remote, local, "")
	assert.Equal(t, models.StatusDecryptionFailed, result.Status)
	assert.Equal(t, "readable local copy", result.Record.Title, "good local content must not be replaced by a placeholder")
	assert.False(t, result.Record.DecryptionFailed)
	assert.True(t, result.Unchanged, "the kept local copy is not new data")
}

func TestProcessRemote_MalformedEnvelopeIsCorrupted(t *testing.T) {
	e := newIngestEnv(t)

	remote := models.RemoteRecord{ID: "0000000000001-aaaaaaaaaaaa", Content: "{not json"}
	result := e.ingestor.ProcessRemote(context.Background(), remote, nil, "")
	assert.Equal(t, models.StatusCorrupted, result.Status)
	assert.True(t, result.Record.DataCorrupted)
	assert.False(t, result.Record.DecryptionFailed)
}

func TestProcessRemote_NoContent(t *testing.T) {
	e := newIngestEnv(t)

	remote := models.RemoteRecord{ID: "0000000000001-aaaaaaaaaaaa"}
	result := e.ingestor.ProcessRemote(context.Background(), remote, nil, "")
	assert.Equal(t, models.StatusNoContent, result.Status)
	assert.Equal(t, "Untitled", result.Record.Title)
	assert.False(t, result.Record.IsPlaceholder())
	assert.False(t, result.Record.IsBlank(), "a no-content record must survive the blank-record check")
}

func TestProcessBatch_SkipsTombstonedIDs(t *testing.T) {
	e := newIngestEnv(t)
	ctx := context.Background()

	alive := e.sealed(t, "0000000000001-aaaaaaaaaaaa", models.Payload{Title: "alive"})
	dead := e.sealed(t, "0000000000002-bbbbbbbbbbbb", models.Payload{Title: "dead"})
	e.tombstones.MarkDeleted(ctx, dead.ID)

	results := e.ingestor.ProcessBatch(ctx, []models.RemoteRecord{alive, dead}, nil, "")
	require.Len(t, results, 1)
	assert.Equal(t, alive.ID, results[0].Record.ID)
}
