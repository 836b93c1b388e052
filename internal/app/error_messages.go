// SPDX-License-Identifier: Apache-2.0

// Package app wires the sync engine together and maps internal failures onto
// the messages shown to the person using the chat application.
//
// All Msg* constants are human-readable strings surfaced in the UI or in log
// entries. Keeping them in one place ensures consistent wording.
package app

const (
	// MsgRecordEncrypted is shown in place of a conversation whose
	// ciphertext no current or retired key can open. The content is intact
	// on the server; entering the right key recovers it.
	MsgRecordEncrypted = "This conversation is encrypted with a key that is not available on this device."

	// MsgRecordCorrupted is shown for a conversation whose ciphertext
	// opened but whose payload could not be decoded. Unlike an encrypted
	// record, no key will ever recover it.
	MsgRecordCorrupted = "This conversation's data is damaged and cannot be recovered."

	// MsgNotAuthenticated is shown when a sync is requested without a
	// usable credential.
	MsgNotAuthenticated = "Sign in to sync conversations across devices."

	// MsgNoEncryptionKey is shown when a sync is requested before an
	// encryption key has been set up.
	MsgNoEncryptionKey = "Set up an encryption key to sync conversations."

	// MsgSyncInProgress is shown when a manual sync is requested while a
	// pass is already running.
	MsgSyncInProgress = "A sync is already running."
)
