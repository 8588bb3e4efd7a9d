package web

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boutique-credit/internal/authz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	})
	return &buf
}

func TestLoggerRecordsCaller(t *testing.T) {
	buf := captureLog(t)
	h := NewHandler(newFakeService(), testConfig())

	rec := do(t, h, http.MethodGet, "/api/dettes/1", token(t, authz.RoleBoutiquier, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	line := buf.String()
	assert.Contains(t, line, "GET /api/dettes/1 200")
	assert.Contains(t, line, "u/BOUTIQUIER")
	assert.Contains(t, line, "["+rec.Header().Get("X-Request-ID")+"]")

	buf.Reset()
	do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Contains(t, buf.String(), "GET /api/health 200")
	assert.Contains(t, buf.String(), " - [")
}

func TestRecovererLogsCallerAndReturns500(t *testing.T) {
	buf := captureLog(t)
	h := NewHandler(newFakeService(), testConfig())

	// ListDettes is not implemented by the fake and panics.
	rec := do(t, h, http.MethodGet, "/api/dettes", token(t, authz.RoleAdmin, nil), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
	assert.Contains(t, buf.String(), "panic in GET /api/dettes by u/ADMIN")
}

func TestRequestIDKeptWhenSafe(t *testing.T) {
	captureLog(t)
	h := NewHandler(newFakeService(), testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/dettes/1", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", decodeError(t, rec).RequestID)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "bad id; drop")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id; drop", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSFromConfig(t *testing.T) {
	captureLog(t)
	cfg := testConfig()
	cfg.AllowedOrigins = "https://shop.example"
	cfg.CORSMaxAge = 5 * time.Minute
	h := NewHandler(newFakeService(), cfg)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/dettes/demande", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://shop.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))

	rec = preflight("https://evil.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://shop.example")
	plain := httptest.NewRecorder()
	h.ServeHTTP(plain, req)
	assert.Equal(t, http.StatusOK, plain.Code)
	assert.Equal(t, "X-Request-ID", plain.Header().Get("Access-Control-Expose-Headers"))
}

func TestBodyLimitFromConfig(t *testing.T) {
	captureLog(t)
	cfg := testConfig()
	cfg.MaxBodyBytes = 64
	h := NewHandler(newFakeService(), cfg)
	admin := token(t, authz.RoleAdmin, nil)

	rec := do(t, h, http.MethodPatch, "/api/dettes/1/status", admin, `{"status":"ACCEPTE"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"status":"ACCEPTE","note":"` + strings.Repeat("x", 100) + `"}`
	rec = do(t, h, http.MethodPatch, "/api/dettes/1/status", admin, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
