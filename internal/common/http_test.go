package common_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	require.Equal(t, "10.0.0.1", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", common.ClientIP(req))

	require.Equal(t, "", common.ClientIP(nil))
}

func TestJSONErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	common.JSONError(rec, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", map[string]any{"fields": []string{"amount"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Fields []string `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	require.Equal(t, "invalid request", body.Error.Message)
	require.Equal(t, []string{"amount"}, body.Error.Details.Fields)
}
