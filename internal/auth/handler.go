package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/httpx"
)

type gateRequest struct {
	Password       string `json:"password"`
	TurnstileToken string `json:"turnstileToken"`
}

type gateMessages struct {
	accepted      string
	wrongPassword string
}

var (
	downloadMessages = gateMessages{
		accepted:      "パスワードを確認しました",
		wrongPassword: "パスワードが正しくありません",
	}
	adminMessages = gateMessages{
		accepted:      "ログインしました",
		wrongPassword: "管理者パスワードが正しくありません",
	}
)

// VerifyPassword は POST /api/verify-password のハンドラーです。
func (m *Manager) VerifyPassword(c *gin.Context) {
	m.handleGate(c, m.download, downloadMessages)
}

// AdminLogin は POST /api/admin/login のハンドラーです。
func (m *Manager) AdminLogin(c *gin.Context) {
	m.handleGate(c, m.admin, adminMessages)
}

// AdminLogout は POST /api/admin/logout のハンドラーです。RequireAdmin の後ろで使います。
func (m *Manager) AdminLogout(c *gin.Context) {
	token := c.GetString(ContextAdminTokenKey)
	if err := m.tokens.Revoke(c.Request.Context(), ScopeAdmin, token); err != nil {
		httpx.RespondError(c, m.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (m *Manager) handleGate(c *gin.Context, gate *Gate, msgs gateMessages) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "password を JSON で送ってください")
		return
	}

	result, err := gate.Submit(c.Request.Context(), Submission{
		Password:          req.Password,
		ChallengeResponse: req.TurnstileToken,
		ClientID:          m.identity.Resolve(c.Request),
	})
	if err != nil {
		httpx.RespondError(c, m.logger, err)
		return
	}

	switch result.Outcome {
	case OutcomeAccepted:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   result.Token,
			"message": msgs.accepted,
		})
	case OutcomeChallengeRequired:
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"message":        "認証チャレンジを完了してください",
			"requireCaptcha": true,
		})
	case OutcomeChallengeFailed:
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"message":        "認証チャレンジの検証に失敗しました",
			"requireCaptcha": true,
		})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{
			"success":        false,
			"message":        msgs.wrongPassword,
			"requireCaptcha": result.RequireCaptcha,
		})
	}
}
