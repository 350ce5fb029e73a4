package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sixwire/sixwire/internal/core"
	"github.com/sixwire/sixwire/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db        store.DataStore
	redis     *store.RedisStore
	allocator *core.Allocator
	relay     *core.Relay
	lifecycle *core.Lifecycle
}

// NewHandler creates a new Handler with the given stores and core services.
func NewHandler(db store.DataStore, redis *store.RedisStore, allocator *core.Allocator, relay *core.Relay, lifecycle *core.Lifecycle) *Handler {
	return &Handler{
		db:        db,
		redis:     redis,
		allocator: allocator,
		relay:     relay,
		lifecycle: lifecycle,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, code, message string) {
	h.JSON(w, status, map[string]string{"error": message, "code": code})
}

// CoreError translates a core failure into an HTTP response. Store failures
// are reported generically, never exposing driver detail.
func (h *Handler) CoreError(w http.ResponseWriter, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		h.Error(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch coreErr.Kind {
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindConflict:
		status = http.StatusConflict
	case core.KindExhausted:
		status = http.StatusServiceUnavailable
	case core.KindStore:
		h.Error(w, http.StatusInternalServerError, "store_error", "storage error")
		return
	}
	h.Error(w, status, coreErr.Code, coreErr.Message)
}
