package models

import "time"

// Deletion reasons recorded when an identity is marked for reclamation.
const (
	ReasonInactivity = "inactivity"
	ReasonManual     = "manual"
	ReasonBeacon     = "beacon"
)

// Identity represents an anonymous participant identified by a 6-digit code.
// A marked identity is still live for lookup purposes until it is purged.
type Identity struct {
	Code              string     `json:"code"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActiveAt      time.Time  `json:"last_active_at"`
	MarkedForDeletion bool       `json:"marked_for_deletion"`
	MarkedAt          *time.Time `json:"marked_at,omitempty"`
	DeleteReason      string     `json:"delete_reason,omitempty"`
}
