// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/adapter"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/config"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/crypto"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/service"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/store"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/utils"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// App owns every component of the sync engine and their lifecycle. The
// embedding chat application reaches the engine through the exported fields.
type App struct {
	Records store.RecordStore
	Keys    crypto.KeyManager
	Tokens  adapter.TokenSource
	Gate    service.StreamGate
	Sync    service.SyncService

	cfg    *config.Config
	logger *logger.Logger
	db     *store.DB
	job    service.SyncJob
}

// New constructs and wires the full engine: storage, key management, remote
// adapter, and sync services. Nothing starts running until [App.Run].
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := store.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	kv := store.NewKVStore(db, log)
	records := store.NewRecordStore(db, log)

	keys, err := crypto.NewKeyManager(ctx, kv, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init key manager: %w", err)
	}

	tokens := adapter.NewTokenSource(cfg.App.AuthToken)
	remote, err := adapter.NewHTTPRemoteStore(cfg.Remote, tokens, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init remote store: %w", err)
	}

	gate := service.NewStreamGate()
	tombstones := service.NewTombstoneTracker(kv, log)
	sync := service.NewSyncService(service.SyncDeps{
		Records:    records,
		KV:         kv,
		Keys:       keys,
		Remote:     remote,
		Tokens:     tokens,
		Gate:       gate,
		Tombstones: tombstones,
		Ingestor:   service.NewIngestor(keys, tombstones, log),
		Logger:     log,
		Config:     cfg.Sync,
	})

	return &App{
		Records: records,
		Keys:    keys,
		Tokens:  tokens,
		Gate:    gate,
		Sync:    sync,
		cfg:     cfg,
		logger:  log,
		db:      db,
		job:     service.NewSyncJob(sync, records, log),
	}, nil
}

// Run starts the background sync job and the optional metrics listener, then
// blocks until ctx is cancelled. Shutdown waits for the sync job to finish
// its current pass.
func (a *App) Run(ctx context.Context) error {
	var metricsSrv *http.Server
	if addr := a.cfg.Metrics.Address; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux}

		go func() {
			a.logger.Info().Str("address", addr).Msg("metrics listener started")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	a.job.Start(ctx, a.cfg.Sync.Interval)

	<-ctx.Done()
	a.logger.Info().Msg("shutting down")

	a.job.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("metrics listener shutdown failed")
		}
	}

	return a.Close()
}

// NewRecord creates and persists a conversation record on this device with a
// freshly minted id. The id encodes the creation time, so listings sort
// newest-first without a secondary index. An empty title falls back to
// "Untitled" so the shell passes the blank-record check.
func (a *App) NewRecord(ctx context.Context, title, projectID string) (models.Record, error) {
	now := time.Now().UTC()
	if title == "" {
		title = "Untitled"
	}

	record := models.Record{
		ID:        utils.NewRecordID(now),
		Title:     title,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Records.Save(ctx, record); err != nil {
		return models.Record{}, fmt.Errorf("create record: %w", err)
	}

	return record, nil
}

// Close releases the underlying database handle.
func (a *App) Close() error {
	return a.db.Close()
}
