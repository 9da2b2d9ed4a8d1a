package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(ok, tag("first"), nil, tag("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", seen)
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), RequestID(), Recovery(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body["request_id"])
}

func TestRateLimiter(t *testing.T) {
	h := NewRateLimiter(60, 2).Middleware(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.CORSConfig
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{
			name:       "wildcard",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://app.example.com",
			wantOrigin: "*",
			wantCode:   http.StatusOK,
		},
		{
			name:       "listed origin",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}},
			method:     http.MethodGet,
			origin:     "https://app.example.com",
			wantOrigin: "https://app.example.com",
			wantCode:   http.StatusOK,
		},
		{
			name:     "unlisted origin",
			cfg:      config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}},
			method:   http.MethodGet,
			origin:   "https://evil.example.com",
			wantCode: http.StatusOK,
		},
		{
			name:       "preflight",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodOptions,
			origin:     "https://app.example.com",
			wantOrigin: "*",
			wantCode:   http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/videos", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.cfg)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestTimeout(t *testing.T) {
	var deadline bool
	h := Timeout(time.Second, "/api/settings/hooks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	assert.True(t, deadline)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/settings/hooks", nil))
	assert.False(t, deadline)
}

func TestLoggingStoresEntry(t *testing.T) {
	var requestID any
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = GetLogger(r.Context()).Data["request_id"]
		w.WriteHeader(http.StatusTeapot)
	}), RequestID(), Logging(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), requestID)

	assert.NotNil(t, GetLogger(context.Background()))
}
