package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sixwire/sixwire/internal/api/middleware"
)

// SendMessageRequest represents the send request body.
type SendMessageRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Content     string `json:"content"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// MarkReadRequest represents the mark-read request body.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids,omitempty"`
}

// MarkReadResponse represents the mark-read response.
type MarkReadResponse struct {
	UpdatedCount int64 `json:"updated_count"`
}

// SendMessage relays a message between two identities. When the client
// supplies no fingerprint, the one derived from the connection is used.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = middleware.FingerprintFromContext(r.Context())
	}

	receipt, err := h.relay.Send(r.Context(), req.From, req.To, req.Content, fingerprint)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, receipt)
}

// ReceiveMessages returns a page of the recipient's inbox and consumes it:
// every message in the response is deleted from the store before the client
// sees it, so a page can only be fetched once.
func (h *Handler) ReceiveMessages(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	inbox, err := h.relay.Receive(r.Context(), code, page, limit, unreadOnly)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, inbox)
}

// MarkMessagesRead flags messages as read without consuming them.
func (h *Handler) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req MarkReadRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
			return
		}
	}

	updated, err := h.relay.MarkRead(r.Context(), code, req.MessageIDs)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MarkReadResponse{UpdatedCount: updated})
}
