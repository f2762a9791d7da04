package auth

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IdentityResolver はリクエストから失敗回数のキーにするクライアント識別子を取り出します。
// 識別子はカウント用途にのみ使い、認可の根拠にはしません。
type IdentityResolver struct {
	// TrustRemoteAddr が true なら、プロキシヘッダーがないとき接続元アドレスを使います。
	TrustRemoteAddr bool
}

// Resolve は CF-Connecting-IP、X-Forwarded-For の先頭、（許可されていれば）接続元の順に見て、
// どれも使えなければ "unknown" を返します。
func (r IdentityResolver) Resolve(req *http.Request) string {
	if ip := firstIP(req.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := firstIP(req.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	if r.TrustRemoteAddr {
		if ip := remoteIP(req); ip != "" {
			return ip
		}
	}
	return unknownClient
}

// ThrottleKey は頻度制限のキーを返します。Resolve が "unknown" になるリクエストも
// 接続元アドレスごとに分け、ヘッダーのないクライアント同士が同じ枠を共有しないようにします。
// 失敗回数のキーには使いません。
func (r IdentityResolver) ThrottleKey(req *http.Request) string {
	if id := r.Resolve(req); id != unknownClient {
		return id
	}
	if ip := remoteIP(req); ip != "" {
		return "conn:" + ip
	}
	return unknownClient
}

func remoteIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(req.RemoteAddr)
	}
	return firstIP(host)
}

// firstIP はカンマ区切りの先頭要素が IP アドレスならそれを返します。
func firstIP(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
