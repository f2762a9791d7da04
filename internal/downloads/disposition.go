package downloads

import "strings"

const upperhex = "0123456789ABCDEF"

// encodeRFC5987 は filename* 用に UTF-8 バイト列をパーセントエンコードします。
// 英数字と "-_.!~" 以外はすべてエンコードします。
func encodeRFC5987(value string) string {
	var b strings.Builder
	b.Grow(len(value) * 3)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '!', c == '~':
		return true
	}
	return false
}

// attachmentDisposition は Content-Disposition ヘッダーの値を組み立てます。
func attachmentDisposition(name string) string {
	return "attachment; filename*=UTF-8''" + encodeRFC5987(name)
}
