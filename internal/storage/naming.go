package storage

import (
	"strconv"
	"strings"
	"time"
)

const fallbackUploadName = "upload.bin"

// SanitizeFilename は [A-Za-z0-9._-] 以外の文字をすべて "_" に置き換えます。
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// StripExtension は最後の "." 以降を取り除きます。先頭の "." だけの名前はそのまま返します。
func StripExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name
	}
	return name[:idx]
}

// ObjectKey はアップロード時刻を前置した保存用キーを作ります。
func ObjectKey(now time.Time, originalName string) string {
	if originalName == "" {
		originalName = fallbackUploadName
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeFilename(originalName)
}

// ObjectKeyWithSuffix は ObjectKey と同じ形式に、衝突回避用の suffix を時刻の後ろへ挟みます。
func ObjectKeyWithSuffix(now time.Time, suffix, originalName string) string {
	if originalName == "" {
		originalName = fallbackUploadName
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeFilename(suffix) + "-" + SanitizeFilename(originalName)
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}
