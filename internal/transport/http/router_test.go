package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/checkcalendar-api/internal/config"
	jwtinfra "github.com/checkcalendar-api/internal/infrastructure/jwt"
	"github.com/checkcalendar-api/internal/infrastructure/mailer"
	"github.com/checkcalendar-api/internal/infrastructure/memstore"
	"github.com/checkcalendar-api/internal/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	mu   sync.Mutex
	last mailer.Message
}

func (m *captureMailer) SendEmail(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = msg
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *captureMailer) code(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := codePattern.FindString(m.last.Text)
	require.NotEmpty(t, c, "no code in %q", m.last.Text)
	return c
}

func newTestServer(t *testing.T) (*httptest.Server, *captureMailer) {
	t.Helper()
	cfg := &config.Config{
		AllowedOrigins:  []string{"*"},
		OTPTTL:          5 * time.Minute,
		DeliveryTimeout: 2 * time.Second,
		ExportURLTTL:    15 * time.Minute,
		JWTSecret:       "router-test-secret",
		JWTExpiry:       7 * 24 * time.Hour,
	}
	tokens, err := jwtinfra.NewProvider(cfg)
	require.NoError(t, err)
	ml := &captureMailer{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewRouter(ctx, cfg, &Deps{
		AccountRepo:     memstore.NewAccountStore(),
		PendingCodeRepo: memstore.NewPendingCodeStore(),
		ActivityRepo:    memstore.NewActivityStore(),
		ExportStore:     memstore.NewObjectStore(),
		Mailer:          ml,
		RequestLimiter:  ratelimit.NewWindow(10, 15*time.Minute),
		Tokens:          tokens,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, ml
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (int, map[string]interface{}, string) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	var obj map[string]interface{}
	_ = json.Unmarshal(buf.Bytes(), &obj)
	return resp.StatusCode, obj, buf.String()
}

func TestRouter_LoginScenario(t *testing.T) {
	srv, ml := newTestServer(t)

	status, body, _ := do(t, srv, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": " User@Example.com "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OTP sent successfully", body["message"])
	assert.NotContains(t, body, "otp")
	code := ml.code(t)

	status, body, _ = do(t, srv, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": "user@example.com", "otp": "000000"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired code", body["error"])

	status, body, _ = do(t, srv, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": "user@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email and OTP are required", body["error"])

	status, body, _ = do(t, srv, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": "USER@example.com", "otp": code})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user@example.com", body["email"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	// Single use.
	status, _, _ = do(t, srv, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": "user@example.com", "otp": code})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body, _ = do(t, srv, http.MethodGet, "/api/calendars", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication required", body["error"])

	status, body, _ = do(t, srv, http.MethodGet, "/api/calendars", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Invalid or expired session", body["error"])

	status, _, raw := do(t, srv, http.MethodGet, "/api/calendars", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, raw)
}

func TestRouter_ActivityLifecycle(t *testing.T) {
	srv, ml := newTestServer(t)
	status, _, _ := do(t, srv, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "a@b.io"})
	require.Equal(t, http.StatusOK, status)
	_, body, _ := do(t, srv, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": "a@b.io", "otp": ml.code(t)})
	token := body["token"].(string)

	status, body, _ = do(t, srv, http.MethodPost, "/api/calendars", token, map[string]string{"name": "Run"})
	require.Equal(t, http.StatusCreated, status)
	id := body["id"].(string)
	assert.Equal(t, "#3b82f6", body["color"])

	status, body, _ = do(t, srv, http.MethodPost, "/api/calendars/"+id+"/toggle", token, map[string]string{"date": "2024-03-10"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"2024-03-10"}, body["checks"])

	status, body, _ = do(t, srv, http.MethodGet, "/api/calendars/"+id+"/report?date=2024-03-10", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["current_streak"])

	status, body, _ = do(t, srv, http.MethodPost, "/api/calendars/export", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body["url"].(string), "memory://exports/"))

	status, _, _ = do(t, srv, http.MethodDelete, "/api/calendars/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _, _ = do(t, srv, http.MethodDelete, "/api/calendars/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_RequestOTPRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 10; i++ {
		status, _, _ := do(t, srv, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "a@b.io"})
		require.Equal(t, http.StatusOK, status, "request %d", i+1)
	}
	status, body, _ := do(t, srv, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "a@b.io"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Too many attempts. Please wait 15 minutes.", body["error"])
}

func TestRouter_InvalidEmail(t *testing.T) {
	srv, _ := newTestServer(t)
	status, body, _ := do(t, srv, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "A valid email address is required", body["error"])
}

func TestRouter_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	status, body, _ := do(t, srv, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["message"])
}
