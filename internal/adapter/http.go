// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/config"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

type httpRemoteStore struct {
	client *resty.Client
	tokens TokenSource
	logger *logger.Logger
}

// NewHTTPRemoteStore constructs the HTTP/REST implementation of
// [RemoteStore]. It normalises and validates the base URL from
// remoteCfg.BaseURL and configures the underlying client with the resolved
// base URL and request timeout.
//
// Returns an error if remoteCfg.BaseURL is empty or cannot be parsed as a
// valid URL.
func NewHTTPRemoteStore(remoteCfg config.Remote, tokens TokenSource, log *logger.Logger) (RemoteStore, error) {
	baseURL, err := normalizeBaseURL(remoteCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote store address: %w", err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(remoteCfg.RequestTimeout)

	return &httpRemoteStore{client: client, tokens: tokens, logger: log}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// GenerateID implements [RemoteStore].
func (h *httpRemoteStore) GenerateID(ctx context.Context) (string, error) {
	resp, err := h.authedRequest(ctx).
		Post("/api/records/id")
	if err != nil {
		return "", fmt.Errorf("generate id request: %w", err)
	}
	if err = remoteStatusError(resp); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode id response: %w", err)
	}

	return out.ID, nil
}

// Put implements [RemoteStore].
func (h *httpRemoteStore) Put(ctx context.Context, id string, ciphertext string, meta models.PutMetadata) error {
	body := struct {
		Content     string    `json:"content"`
		UpdatedAt   time.Time `json:"updatedAt"`
		SyncVersion int64     `json:"syncVersion"`
	}{Content: ciphertext, UpdatedAt: meta.UpdatedAt, SyncVersion: meta.SyncVersion}

	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put("/api/records/" + url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("put record request: %w", err)
	}

	return remoteStatusError(resp)
}

// Get implements [RemoteStore].
func (h *httpRemoteStore) Get(ctx context.Context, id string) (string, error) {
	resp, err := h.authedRequest(ctx).
		Get("/api/records/" + url.PathEscape(id))
	if err != nil {
		return "", fmt.Errorf("get record request: %w", err)
	}
	if err = remoteStatusError(resp); err != nil {
		return "", err
	}

	var out models.RemoteRecord
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode record response: %w", err)
	}

	return out.Content, nil
}

// Delete implements [RemoteStore].
func (h *httpRemoteStore) Delete(ctx context.Context, id string) error {
	resp, err := h.authedRequest(ctx).
		Delete("/api/records/" + url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("delete record request: %w", err)
	}

	return remoteStatusError(resp)
}

// List implements [RemoteStore].
func (h *httpRemoteStore) List(ctx context.Context, opts models.ListOptions) (models.ListPage, error) {
	req := h.authedRequest(ctx)
	if opts.PageSize > 0 {
		req.SetQueryParam("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.PageToken != "" {
		req.SetQueryParam("pageToken", opts.PageToken)
	}
	if opts.InlineContent {
		req.SetQueryParam("inlineContent", "true")
	}

	resp, err := req.Get("/api/records")
	if err != nil {
		return models.ListPage{}, fmt.Errorf("list records request: %w", err)
	}
	if err = remoteStatusError(resp); err != nil {
		return models.ListPage{}, err
	}

	var page models.ListPage
	if err = json.Unmarshal(resp.Body(), &page); err != nil {
		return models.ListPage{}, fmt.Errorf("decode list response: %w", err)
	}

	return page, nil
}

// ListUpdatedSince implements [RemoteStore].
func (h *httpRemoteStore) ListUpdatedSince(ctx context.Context, ts time.Time) ([]models.RemoteRecord, error) {
	resp, err := h.authedRequest(ctx).
		SetQueryParam("since", ts.UTC().Format(time.RFC3339Nano)).
		Get("/api/records/updated")
	if err != nil {
		return nil, fmt.Errorf("list updated request: %w", err)
	}
	if err = remoteStatusError(resp); err != nil {
		return nil, err
	}

	var items []models.RemoteRecord
	if err = json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("decode updated response: %w", err)
	}

	return items, nil
}

// ListDeletedSince implements [RemoteStore].
func (h *httpRemoteStore) ListDeletedSince(ctx context.Context, ts time.Time) ([]string, error) {
	resp, err := h.authedRequest(ctx).
		SetQueryParam("since", ts.UTC().Format(time.RFC3339Nano)).
		Get("/api/records/deleted")
	if err != nil {
		return nil, fmt.Errorf("list deleted request: %w", err)
	}
	if err = remoteStatusError(resp); err != nil {
		return nil, err
	}

	var ids []string
	if err = json.Unmarshal(resp.Body(), &ids); err != nil {
		return nil, fmt.Errorf("decode deleted response: %w", err)
	}

	return ids, nil
}

func (h *httpRemoteStore) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	for k, v := range h.tokens.GetAuthHeaders() {
		req.SetHeader(k, v)
	}
	return req
}
