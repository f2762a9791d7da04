package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/download-gate/internal/catalog"
	"github.com/yourusername/download-gate/internal/config"
	"github.com/yourusername/download-gate/internal/logging"
)

type envelope struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	Token          string         `json:"token"`
	RequireCaptcha bool           `json:"requireCaptcha"`
	Item           *catalog.Item  `json:"item"`
	Items          []catalog.Item `json:"items"`
	Status         string         `json:"status"`
	Service        string         `json:"service"`
}

// newTurnstileServer は response が "valid" のときだけ成功を返す siteverify です。
func newTurnstileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": r.PostForm.Get("response") == "valid",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, overrides map[string]string) *app {
	t.Helper()
	values := map[string]string{
		"GIN_MODE":             "test",
		"DOWNLOAD_PASSWORD":    "secret1",
		"ADMIN_PASSWORD":       "admin-secret",
		"UPLOAD_DIR":           t.TempDir(),
		"GATE_RATE_BURST":      "100",
		"TURNSTILE_ENABLED":    "true",
		"TURNSTILE_SECRET_KEY": "turnstile-secret",
		"TURNSTILE_VERIFY_URL": newTurnstileServer(t).URL,
	}
	for k, v := range overrides {
		values[k] = v
	}
	cfg, err := config.FromLookup(func(key string) string { return values[key] })
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func call(t *testing.T, a *app, method, path, body string, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("CF-Connecting-IP", "203.0.113.9")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func adminLogin(t *testing.T, a *app) string {
	t.Helper()
	rec, env := call(t, a, http.MethodPost, "/api/admin/login", `{"password":"admin-secret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, env.Token)
	return env.Token
}

func upload(t *testing.T, a *app, token, filename string, content []byte) *catalog.Item {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("name", "Release notes"))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Item)
	return env.Item
}

func TestDownloadGateScenario(t *testing.T) {
	a := newTestApp(t, nil)
	content := []byte("portal release notes\n")
	item := upload(t, a, adminLogin(t, a), "notes.txt", content)

	for i := 1; i <= 3; i++ {
		rec, env := call(t, a, http.MethodPost, "/api/verify-password", `{"password":"nope"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, i == 3, env.RequireCaptcha, "attempt %d", i)
	}

	// 閾値到達後は正しいパスワードでもチャレンジが必要
	rec, env := call(t, a, http.MethodPost, "/api/verify-password", `{"password":"secret1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, env.RequireCaptcha)

	rec, env = call(t, a, http.MethodPost, "/api/verify-password", `{"password":"secret1","turnstileToken":"forged"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, env.RequireCaptcha)

	rec, env = call(t, a, http.MethodPost, "/api/verify-password", `{"password":"secret1","turnstileToken":"valid"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, env.Success)
	require.Len(t, env.Token, 64)
	downloadToken := env.Token

	rec, _ = call(t, a, http.MethodGet, "/api/download/"+item.Filename+"?token="+downloadToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Equal(t, "attachment; filename*=UTF-8''notes.txt", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec, env = call(t, a, http.MethodGet, "/api/download/"+item.Filename+"?token=bogus", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	// ダウンロードトークンは管理 API には使えない
	rec, _ = call(t, a, http.MethodGet, "/api/admin/files", "", bearer(downloadToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCatalogRoutes(t *testing.T) {
	a := newTestApp(t, nil)

	rec, _ := call(t, a, http.MethodGet, "/api/admin/files", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := adminLogin(t, a)
	rec, env := call(t, a, http.MethodGet, "/api/admin/files", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	seeded := len(env.Items)
	assert.Equal(t, len(catalog.DefaultItems()), seeded)

	rec, env = call(t, a, http.MethodPost, "/api/admin/link", `{"name":"Docs","url":"https://example.com/docs"}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := env.Item.ID

	rec, env = call(t, a, http.MethodGet, "/api/files", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Items, seeded+1)
	assert.Equal(t, "https://example.com/docs", env.Items[0].URL)

	rec, _ = call(t, a, http.MethodDelete, "/api/admin/files/"+id, "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, a, http.MethodDelete, "/api/admin/files/"+id, "", bearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, a, http.MethodPost, "/api/admin/logout", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, a, http.MethodGet, "/api/admin/files", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceRoutes(t *testing.T) {
	a := newTestApp(t, map[string]string{"SEED_DEFAULTS": "false"})

	rec, env := call(t, a, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, serviceName, env.Service)

	rec, env = call(t, a, http.MethodGet, "/api/files", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Items)

	rec, env = call(t, a, http.MethodGet, "/api/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)

	rec, _ = call(t, a, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "download_gate_")
}

func TestMetricsCanBeDisabled(t *testing.T) {
	a := newTestApp(t, map[string]string{"METRICS_ENABLED": "false"})

	rec, _ := call(t, a, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateThrottle(t *testing.T) {
	a := newTestApp(t, map[string]string{"GATE_RATE_BURST": "2", "GATE_RATE_PER_SECOND": "0.001"})

	for i := 0; i < 2; i++ {
		rec, _ := call(t, a, http.MethodPost, "/api/verify-password", `{"password":"nope"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, env := call(t, a, http.MethodPost, "/api/verify-password", `{"password":"secret1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, env.Success)
}
