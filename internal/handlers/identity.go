package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sixwire/sixwire/internal/core"
	"github.com/sixwire/sixwire/internal/metrics"
)

// IdentityResponse is returned by generate and reserve.
type IdentityResponse struct {
	Code string `json:"code"`
}

// AvailabilityResponse is returned by the availability check.
type AvailabilityResponse struct {
	Available bool   `json:"available"`
	Code      string `json:"code"`
}

// ExistsResponse is returned by the existence check.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// HeartbeatResponse is returned by the heartbeat endpoint.
type HeartbeatResponse struct {
	LastActiveAt time.Time `json:"last_active_at"`
}

// GenerateIdentity allocates a fresh random 6-digit identity.
func (h *Handler) GenerateIdentity(w http.ResponseWriter, r *http.Request) {
	code, err := h.allocator.Allocate(r.Context())
	if err != nil {
		h.CoreError(w, err)
		return
	}

	metrics.IdentitiesAllocated.Inc()
	h.JSON(w, http.StatusCreated, IdentityResponse{Code: code})
}

// ReserveIdentity claims a caller-chosen code.
func (h *Handler) ReserveIdentity(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ident, err := h.allocator.Reserve(r.Context(), code)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	metrics.IdentitiesReserved.Inc()
	h.JSON(w, http.StatusCreated, IdentityResponse{Code: ident.Code})
}

// CheckAvailability reports whether a code can be reserved. Format-invalid
// codes are reported unavailable rather than rejected.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	available, err := h.allocator.IsAvailable(r.Context(), code)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, AvailabilityResponse{Available: available, Code: code})
}

// IdentityExists reports whether an identity currently holds the code.
// A marked-for-deletion identity still exists until purged.
func (h *Handler) IdentityExists(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	exists := false
	if core.ValidCode(code) {
		var err error
		exists, err = h.db.IdentityExists(r.Context(), code)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "store_error", "storage error")
			return
		}
	}

	h.JSON(w, http.StatusOK, ExistsResponse{Exists: exists})
}

// Heartbeat refreshes an identity's last_active_at.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	lastActive, err := h.lifecycle.Touch(r.Context(), code)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, HeartbeatResponse{LastActiveAt: lastActive})
}

// DeleteIdentity handles explicit deletion requests. Always succeeds:
// deleting an absent identity reports a no-op, so duplicate beacon calls on
// page unload never see an error.
func (h *Handler) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	immediate, _ := strconv.ParseBool(r.URL.Query().Get("immediate"))
	reason := r.URL.Query().Get("reason")

	result, err := h.lifecycle.Delete(r.Context(), code, immediate, reason)
	if err != nil {
		h.CoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, result)
}
