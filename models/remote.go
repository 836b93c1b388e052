package models

import "time"

// RemoteRecord is the wire representation of a record as returned by the
// remote object store. Content is the opaque ciphertext envelope (JSON of
// [EncryptedEnvelope]) or empty when the body was not inlined or does not
// exist. Timestamps stay as raw strings: the store has historically emitted
// both RFC 3339 and epoch-millisecond forms, and ingestion normalizes them.
type RemoteRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	// SyncVersion echoes the version counter supplied at upload time.
	SyncVersion int64 `json:"syncVersion,omitempty"`
}

// PutMetadata is the sidecar metadata attached to an uploaded ciphertext.
type PutMetadata struct {
	UpdatedAt   time.Time `json:"updatedAt"`
	SyncVersion int64     `json:"syncVersion"`
}

// ListOptions controls a paginated listing of remote records.
type ListOptions struct {
	PageSize      int    `json:"pageSize,omitempty"`
	PageToken     string `json:"pageToken,omitempty"`
	InlineContent bool   `json:"inlineContent,omitempty"`
}

// ListPage is one page of remote records. An empty NextPageToken means the
// listing is exhausted.
type ListPage struct {
	Items         []RemoteRecord `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}
