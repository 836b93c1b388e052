package models

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var ErrInvalidRecord = errors.New("invalid record")

// AttachmentRef points at a preprocessed document or image stored outside the
// conversation body. Only the identity participates in the content
// fingerprint.
type AttachmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Message is a single turn of a conversation.
type Message struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Thinking    string          `json:"thinking,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Record is the unit of sync: conversation content plus sync metadata.
//
// The sync metadata fields (SyncVersion, SyncedAt, LocallyModified,
// IsLocalOnly, DecryptionFailed, DataCorrupted, EncryptedData) never
// participate in the content fingerprint.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ProjectID string    `json:"projectId,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// SyncVersion is incremented exactly once per successful upload.
	SyncVersion int64 `json:"syncVersion"`
	// SyncedAt is the time of the last successful upload or download.
	// nil means the record has never been synced.
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
	// LocallyModified is true when the content fingerprint differs from
	// what is believed to be on the server.
	LocallyModified bool `json:"locallyModified"`
	// IsLocalOnly permanently excludes the record from remote sync.
	IsLocalOnly bool `json:"isLocalOnly"`

	DecryptionFailed bool `json:"decryptionFailed,omitempty"`
	DataCorrupted    bool `json:"dataCorrupted,omitempty"`
	// EncryptedData retains the original ciphertext when decryption failed
	// or was deferred, so a later key rotation can retry without re-fetching.
	EncryptedData string `json:"encryptedData,omitempty"`
}

// IsPlaceholder reports whether the record stands in for content that could
// not be recovered. Placeholders must never be uploaded: their empty body
// would overwrite good remote data.
func (r *Record) IsPlaceholder() bool {
	return r.DecryptionFailed || r.EncryptedData != ""
}

// IsBlank reports whether the record carries no user-visible content at all.
// Blank records are in-progress shells and are never persisted or synced.
func (r *Record) IsBlank() bool {
	return r.Title == "" && len(r.Messages) == 0 && !r.IsPlaceholder()
}

// Validate checks the structural minimum for a record to enter the store.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("empty id"))
	}
	for i := range r.Messages {
		if r.Messages[i].Role == "" {
			return errors.Join(ErrInvalidRecord, errors.New("message with empty role"))
		}
	}
	return nil
}

// Payload is the encryptable content of a record: everything the user can
// see, nothing of the sync bookkeeping.
type Payload struct {
	Title     string    `json:"title"`
	ProjectID string    `json:"projectId,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ContentPayload extracts the encryptable content of r.
func (r *Record) ContentPayload() Payload {
	return Payload{
		Title:     r.Title,
		ProjectID: r.ProjectID,
		Messages:  r.Messages,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
