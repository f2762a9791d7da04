package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yourusername/download-gate/internal/httpx"
)

const throttleIdleTTL = 10 * time.Minute

type clientLimiter struct {
	lim     *rate.Limiter
	lastHit time.Time
}

// Throttle はクライアントごとのトークンバケットでパスワード送信の頻度を抑えます。
// 失敗回数とは独立した、総当たり対策の補助です。
type Throttle struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewThrottle は 1 秒あたり perSecond 回、最大 burst 回まで許可する Throttle を作成します。
func NewThrottle(perSecond float64, burst int) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow は identity の送信を 1 回消費できるかどうかを返します。
func (t *Throttle) Allow(identity string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > time.Minute {
		for k, v := range t.limiters {
			if now.Sub(v.lastHit) > throttleIdleTTL {
				delete(t.limiters, k)
			}
		}
		t.lastSweep = now
	}

	cl, ok := t.limiters[identity]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[identity] = cl
	}
	cl.lastHit = now
	return cl.lim.AllowN(now, 1)
}

// Middleware は上限を超えたリクエストを 429 で打ち切ります。
func (t *Throttle) Middleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Allow(resolver.ThrottleKey(c.Request)) {
			c.Header("Retry-After", "1")
			httpx.Abort(c, http.StatusTooManyRequests, "試行回数が多すぎます。しばらくしてから再度お試しください")
			return
		}
		c.Next()
	}
}
