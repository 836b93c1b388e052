// SPDX-License-Identifier: Apache-2.0

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// fingerprintContent is the canonical shape hashed by Fingerprint. It covers
// exactly the user-visible content: title, project association, and
// per-message role/text/thinking-trace/timestamp/attachment identity. The
// record's own UpdatedAt and every sync metadata field are deliberately
// excluded, so a no-op re-save does not spuriously dirty the record.
type fingerprintContent struct {
	Title     string               `json:"title"`
	ProjectID string               `json:"projectId"`
	Messages  []fingerprintMessage `json:"messages"`
}

type fingerprintMessage struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Thinking    string    `json:"thinking,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Fingerprint computes the stable content digest of a record.
func Fingerprint(r *models.Record) string {
	content := fingerprintContent{
		Title:     r.Title,
		ProjectID: r.ProjectID,
		Messages:  make([]fingerprintMessage, 0, len(r.Messages)),
	}
	for i := range r.Messages {
		m := &r.Messages[i]
		fm := fingerprintMessage{
			Role:      m.Role,
			Content:   m.Content,
			Thinking:  m.Thinking,
			Timestamp: m.Timestamp.UTC(),
		}
		for _, a := range m.Attachments {
			fm.Attachments = append(fm.Attachments, a.ID)
		}
		content.Messages = append(content.Messages, fm)
	}

	// Struct field order is fixed, so the JSON encoding is canonical.
	payload, err := json.Marshal(content)
	if err != nil {
		// Marshalling a plain struct of strings and times cannot fail;
		// an empty fingerprint would mask real changes, so panic loudly.
		panic("fingerprint marshal: " + err.Error())
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
