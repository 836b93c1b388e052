package models

// KeyBundle is the full symmetric key state of a device: the active
// encryption key plus retired keys kept for decrypting older ciphertext.
// History is ordered most-recently-retired first and never contains the
// active key.
type KeyBundle struct {
	Active  string   `json:"active"`
	History []string `json:"history,omitempty"`
}
