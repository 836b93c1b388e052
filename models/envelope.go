package models

// EncryptedEnvelope is the transport encoding of an encrypted payload.
// Both fields are standard base64.
type EncryptedEnvelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}
