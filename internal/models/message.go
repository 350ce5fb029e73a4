package models

import "time"

// Message is a short text message between two identities.
// The fingerprint is a coarse spam signal and is never serialized to clients.
type Message struct {
	ID                string    `json:"id"` // ULID
	SenderID          string    `json:"from"`
	RecipientID       string    `json:"to"`
	Content           string    `json:"content"`
	SenderFingerprint string    `json:"-"`
	CreatedAt         time.Time `json:"ts"`
	IsRead            bool      `json:"is_read"`
}
