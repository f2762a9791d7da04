// Package captcha は Cloudflare Turnstile の検証クライアントです。
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultTimeout   = 5 * time.Second

	maxResponseBytes = 64 << 10
)

// Turnstile は siteverify API でチャレンジ応答を検証します。
// どのような失敗も「検証失敗」として扱います。
type Turnstile struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    *slog.Logger
}

// Option は Turnstile の設定を変更します。
type Option func(*Turnstile)

// WithVerifyURL は検証先 URL を差し替えます。
func WithVerifyURL(u string) Option {
	return func(t *Turnstile) {
		if u != "" {
			t.verifyURL = u
		}
	}
}

// WithTimeout は 1 回の検証にかける上限時間を設定します。
func WithTimeout(d time.Duration) Option {
	return func(t *Turnstile) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// WithHTTPClient は HTTP クライアントを差し替えます。
func WithHTTPClient(c *http.Client) Option {
	return func(t *Turnstile) {
		if c != nil {
			t.client = c
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(t *Turnstile) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New は Turnstile 検証クライアントを作成します。
func New(secret string, opts ...Option) *Turnstile {
	t := &Turnstile{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: DefaultTimeout},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify は応答トークンを検証します。成功と明示された場合だけ true です。
func (t *Turnstile) Verify(ctx context.Context, response, remoteIP string) bool {
	if t.secret == "" {
		t.logger.Warn("turnstile verification skipped: secret is not configured")
		return false
	}
	if strings.TrimSpace(response) == "" {
		return false
	}

	ok, err := t.verify(ctx, response, remoteIP)
	if err != nil {
		t.logger.Warn("turnstile verification failed", "err", err)
		return false
	}
	return ok
}

func (t *Turnstile) verify(ctx context.Context, response, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", response)
	if remoteIP != "" && remoteIP != "unknown" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return false, fmt.Errorf("decode siteverify response: %w", err)
	}
	if !body.Success && len(body.ErrorCodes) > 0 {
		t.logger.Info("turnstile rejected response", "codes", strings.Join(body.ErrorCodes, ","))
	}
	return body.Success, nil
}
