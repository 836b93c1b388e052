package adapter

import (
	"context"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// RemoteStore is the remote object store holding encrypted conversation
// records. Implementations carry the bearer credential supplied by the
// external auth collaborator on every call.
type RemoteStore interface {
	// GenerateID asks the server to mint a fresh record id.
	GenerateID(ctx context.Context) (string, error)

	// Put uploads ciphertext for id along with its sidecar metadata.
	Put(ctx context.Context, id string, ciphertext string, meta models.PutMetadata) error

	// Get fetches the ciphertext for id. Returns ErrNotFound (wrapped) when
	// the record does not exist remotely.
	Get(ctx context.Context, id string) (string, error)

	// Delete removes the remote record. Deleting an absent id returns
	// ErrNotFound (wrapped); callers that treat that as success must check
	// with errors.Is.
	Delete(ctx context.Context, id string) error

	// List returns one page of remote records, optionally with inline
	// content.
	List(ctx context.Context, opts models.ListOptions) (models.ListPage, error)

	// ListUpdatedSince returns records whose remote updatedAt is after ts.
	ListUpdatedSince(ctx context.Context, ts time.Time) ([]models.RemoteRecord, error)

	// ListDeletedSince returns ids deleted remotely after ts.
	ListDeletedSince(ctx context.Context, ts time.Time) ([]string, error)
}

// TokenSource supplies the bearer credential for remote calls. Credential
// acquisition (login, passkeys, session refresh) is an external collaborator;
// sync only needs the headers and a liveness check.
type TokenSource interface {
	// GetAuthHeaders returns the headers to attach to a remote call.
	GetAuthHeaders() map[string]string

	// IsAuthenticated reports whether a usable (present, unexpired)
	// credential is available. Sync silently no-ops when it is not.
	IsAuthenticated() bool
}
