// SPDX-License-Identifier: Apache-2.0

package store

const (
	upsertRecord = `
		INSERT INTO records (
			id,
			title,
			project_id,
			messages,
			created_at,
			updated_at,
			sync_version,
			synced_at,
			locally_modified,
			is_local_only,
			decryption_failed,
			data_corrupted,
			encrypted_data,
			content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title             = excluded.title,
			project_id        = excluded.project_id,
			messages          = excluded.messages,
			created_at        = excluded.created_at,
			updated_at        = excluded.updated_at,
			sync_version      = excluded.sync_version,
			synced_at         = excluded.synced_at,
			locally_modified  = excluded.locally_modified,
			is_local_only     = excluded.is_local_only,
			decryption_failed = excluded.decryption_failed,
			data_corrupted    = excluded.data_corrupted,
			encrypted_data    = excluded.encrypted_data,
			content_hash      = excluded.content_hash;`

	recordColumns = `
			id,
			title,
			project_id,
			messages,
			created_at,
			updated_at,
			sync_version,
			synced_at,
			locally_modified,
			is_local_only,
			decryption_failed,
			data_corrupted,
			encrypted_data,
			content_hash`

	getRecord = `
		SELECT` + recordColumns + `
		FROM records
		WHERE id = ?;`

	getAllRecords = `
		SELECT` + recordColumns + `
		FROM records
		ORDER BY id ASC;`

	getUnsyncedRecords = `
		SELECT` + recordColumns + `
		FROM records
		WHERE locally_modified = TRUE OR synced_at IS NULL
		ORDER BY id ASC;`

	getEncryptedRecords = `
		SELECT` + recordColumns + `
		FROM records
		WHERE decryption_failed = TRUE AND encrypted_data != ''
		ORDER BY id ASC;`

	touchLastAccessed = `
		UPDATE records SET last_accessed = ? WHERE id = ?;`

	markSynced = `
		UPDATE records
		SET synced_at = ?, sync_version = ?, locally_modified = ?
		WHERE id = ?;`

	deleteRecord = `
		DELETE FROM records WHERE id = ?;`

	listSyncableIDs = `
		SELECT id FROM records WHERE is_local_only = FALSE;`

	listAllIDs = `
		SELECT id FROM records;`

	deleteByID = `
		DELETE FROM records WHERE id = ?;`

	getKV    = `SELECT v FROM kv WHERE k = ?;`
	upsertKV = `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v;`
	deleteKV = `DELETE FROM kv WHERE k = ?;`
)
