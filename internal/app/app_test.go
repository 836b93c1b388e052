package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/config"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/utils"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		App:     config.App{LogLevel: "info"},
		Remote:  config.Remote{BaseURL: "https://sync.example.com", RequestTimeout: 30 * time.Second},
		Storage: config.Storage{DSN: ":memory:"},
		Sync: config.Sync{
			Interval:       5 * time.Minute,
			PageSize:       100,
			RetryBatchSize: 10,
		},
	}

	engine, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestNewRecord(t *testing.T) {
	engine := newTestApp(t)
	ctx := context.Background()

	record, err := engine.NewRecord(ctx, "trip planning", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "trip planning", record.Title)
	assert.Equal(t, "proj-1", record.ProjectID)

	// The id encodes the creation time.
	encoded, err := utils.TimeFromRecordID(record.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, record.CreatedAt, encoded, time.Second)

	got, err := engine.Records.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "trip planning", got.Title)
}

func TestNewRecord_EmptyTitleDefaults(t *testing.T) {
	engine := newTestApp(t)

	record, err := engine.NewRecord(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", record.Title)
}

func TestNewRecord_IDsSortNewestFirst(t *testing.T) {
	engine := newTestApp(t)
	ctx := context.Background()

	older, err := engine.NewRecord(ctx, "older", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newer, err := engine.NewRecord(ctx, "newer", "")
	require.NoError(t, err)

	assert.Less(t, newer.ID, older.ID, "newer records sort first in ascending id order")
}
