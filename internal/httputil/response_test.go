package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&er))
	return er.Error
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad joints") }, http.StatusBadRequest, "bad joints"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "store disabled") }, http.StatusServiceUnavailable, "store disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"state": "recording"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"state":"recording"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type target struct {
		X float64 `json:"x"`
	}

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"x": 12.5}`, true},
		{"unknown field", `{"x": 1, "w": 2}`, false},
		{"malformed", `{"x":`, false},
		{"too large", `{"x": 1, "pad": "` + strings.Repeat("a", MaxBodySize) + `"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/pose", strings.NewReader(tt.body))
			var v target
			ok := DecodeJSON(rec, req, &v)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, 12.5, v.X)
				return
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec), "invalid request body")
		})
	}
}
