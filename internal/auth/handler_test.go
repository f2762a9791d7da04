package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/download-gate/internal/kv"
)

type envelope struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Token          string `json:"token"`
	RequireCaptcha bool   `json:"requireCaptcha"`
}

func newTestRouter(t *testing.T, cfg Config, verifier ChallengeVerifier) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := NewManager(cfg, kv.NewMemory(), WithChallengeVerifier(verifier))
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/verify-password", m.VerifyPassword)
	router.POST("/api/admin/login", m.AdminLogin)
	admin := router.Group("/api/admin", m.RequireAdmin())
	admin.POST("/logout", m.AdminLogout)
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router, m
}

func doJSON(t *testing.T, router http.Handler, method, path, body, bearer string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CF-Connecting-IP", "203.0.113.5")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestVerifyPasswordFlow(t *testing.T) {
	router, _ := newTestRouter(t, Config{DownloadPassword: "secret1", ChallengeEnabled: true}, &stubVerifier{})

	for i := 1; i <= 3; i++ {
		rec, env := doJSON(t, router, http.MethodPost, "/api/verify-password", `{"password":"wrong"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, i >= 3, env.RequireCaptcha, "attempt %d", i)
	}

	rec, env := doJSON(t, router, http.MethodPost, "/api/verify-password", `{"password":"secret1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, env.RequireCaptcha)

	rec, env = doJSON(t, router, http.MethodPost, "/api/verify-password", `{"password":"secret1","turnstileToken":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, env.RequireCaptcha)
}

func TestVerifyPasswordSuccess(t *testing.T) {
	router, m := newTestRouter(t, Config{DownloadPassword: "secret1"}, nil)

	rec, env := doJSON(t, router, http.MethodPost, "/api/verify-password", `{"password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Len(t, env.Token, 64)

	ok, err := m.CheckDownloadToken(context.Background(), env.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, Config{DownloadPassword: "secret1"}, nil)

	rec, env := doJSON(t, router, http.MethodPost, "/api/verify-password", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestAdminLoginNotConfigured(t *testing.T) {
	router, _ := newTestRouter(t, Config{DownloadPassword: "secret1"}, nil)

	rec, env := doJSON(t, router, http.MethodPost, "/api/admin/login", `{"password":"anything"}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "管理者パスワードが設定されていません", env.Message)
}

func TestRequireAdmin(t *testing.T) {
	router, _ := newTestRouter(t, Config{DownloadPassword: "secret1", AdminPassword: "adminpw"}, nil)

	rec, env := doJSON(t, router, http.MethodGet, "/api/admin/ping", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	missingMessage := env.Message

	rec, env = doJSON(t, router, http.MethodGet, "/api/admin/ping", "", "bogus")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEqual(t, missingMessage, env.Message)

	// ダウンロード用トークンでは管理 API に入れない
	_, dl := doJSON(t, router, http.MethodPost, "/api/verify-password", `{"password":"secret1"}`, "")
	rec, _ = doJSON(t, router, http.MethodGet, "/api/admin/ping", "", dl.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, login := doJSON(t, router, http.MethodPost, "/api/admin/login", `{"password":"adminpw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/admin/ping", "", login.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/admin/logout", "", login.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/admin/ping", "", login.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
