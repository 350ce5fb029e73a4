package handlers

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// StatsResponse represents the service statistics response.
type StatsResponse struct {
	Identities        int64  `json:"identities"`
	MarkedForDeletion int64  `json:"marked_for_deletion"`
	Messages          int64  `json:"messages"`
	Uptime            string `json:"uptime"`
}

// Stats reports live counts from the store.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identities, err := h.db.CountIdentities(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "store_error", "storage error")
		return
	}
	marked, err := h.db.CountMarked(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "store_error", "storage error")
		return
	}
	messages, err := h.db.CountAllMessages(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "store_error", "storage error")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Identities:        identities,
		MarkedForDeletion: marked,
		Messages:          messages,
		Uptime:            time.Since(startedAt).Round(time.Second).String(),
	})
}
