package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sixwire/sixwire/internal/config"
	"github.com/sixwire/sixwire/internal/core"
	"github.com/sixwire/sixwire/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(zerolog.Nop(), store.NewMemoryStore(), nil, &config.Config{})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	fields := make(map[string]json.RawMessage)
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	}
	return rec, fields
}

func strField(t *testing.T, fields map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(fields[key], &s))
	return s
}

func TestIdentityEndpoints(t *testing.T) {
	router := newTestRouter(t)

	// Generate
	rec, fields := doJSON(t, router, "POST", "/identity", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	code := strField(t, fields, "code")
	require.True(t, core.ValidCode(code))

	// The generated code now exists and is unavailable
	rec, fields = doJSON(t, router, "GET", "/identity/"+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"exists":true}`, rec.Body.String())

	rec, _ = doJSON(t, router, "GET", "/identity/"+code+"/available", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, fmt.Sprintf(`{"available":false,"code":%q}`, code), rec.Body.String())

	// Reserve a chosen code
	rec, _ = doJSON(t, router, "POST", "/identity/424242", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, fields = doJSON(t, router, "POST", "/identity/424242", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "code_taken", strField(t, fields, "code"))

	rec, _ = doJSON(t, router, "POST", "/identity/42", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Format-invalid lookups are unavailable / absent, never an error
	rec, _ = doJSON(t, router, "GET", "/identity/banana/available", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"available":false,"code":"banana"}`, rec.Body.String())

	// Heartbeat
	rec, _ = doJSON(t, router, "POST", "/identity/424242/heartbeat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, "POST", "/identity/767676/heartbeat", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageFlow(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, "POST", "/identity/111111", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, router, "POST", "/identity/222222", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Send
	rec, fields := doJSON(t, router, "POST", "/messages", map[string]string{
		"from": "111111", "to": "222222", "content": "hi",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, strField(t, fields, "message_id"))

	// Spam is rejected with a reason
	rec, fields = doJSON(t, router, "POST", "/messages", map[string]string{
		"from": "111111", "to": "222222", "content": "aaaaaaaaaaaa",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_message", strField(t, fields, "code"))

	// Self-send is rejected
	rec, _ = doJSON(t, router, "POST", "/messages", map[string]string{
		"from": "111111", "to": "111111", "content": "hi me",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Receive consumes the inbox
	rec, fields = doJSON(t, router, "GET", "/messages/222222?page=1&limit=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted int64
	require.NoError(t, json.Unmarshal(fields["deleted_count"], &deleted))
	require.Equal(t, int64(1), deleted)

	rec, fields = doJSON(t, router, "GET", "/messages/222222", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(fields["deleted_count"], &deleted))
	require.Equal(t, int64(0), deleted)

	// Unknown recipient
	rec, _ = doJSON(t, router, "GET", "/messages/999999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteIdentityIdempotent(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, "POST", "/identity/111111", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, router, "POST", "/identity/222222", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, content := range []string{"one", "two", "three"} {
		rec, _ = doJSON(t, router, "POST", "/messages", map[string]string{
			"from": "222222", "to": "111111", "content": content,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, fields := doJSON(t, router, "DELETE", "/identity/111111?immediate=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wasDeleted bool
	require.NoError(t, json.Unmarshal(fields["was_deleted"], &wasDeleted))
	require.True(t, wasDeleted)
	var deletedMsgs int64
	require.NoError(t, json.Unmarshal(fields["deleted_messages"], &deletedMsgs))
	require.Equal(t, int64(3), deletedMsgs)

	// Duplicate delete (e.g. a second beacon) still succeeds
	rec, fields = doJSON(t, router, "DELETE", "/identity/111111?immediate=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(fields["was_deleted"], &wasDeleted))
	require.False(t, wasDeleted)

	// Beacon-style soft delete records its reason
	rec, fields = doJSON(t, router, "DELETE", "/identity/222222?reason=beacon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "beacon", strField(t, fields, "reason"))
}

func TestHealthAndStats(t *testing.T) {
	router := newTestRouter(t)

	rec, fields := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "healthy", strField(t, fields, "status"))

	rec, _ = doJSON(t, router, "POST", "/identity/111111", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, fields = doJSON(t, router, "GET", "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var identities int64
	require.NoError(t, json.Unmarshal(fields["identities"], &identities))
	require.Equal(t, int64(1), identities)
}
