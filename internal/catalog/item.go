// Package catalog はダウンロード項目（ファイルまたは外部リンク）の一覧を KV ストア上で管理します。
package catalog

import (
	"errors"
	"strings"
	"time"
)

// Kind は項目の種類です。
type Kind string

const (
	KindFile Kind = "file"
	KindLink Kind = "link"
)

// StorageLocal はローカルディスクの blob を指す項目の保存先名です。
const StorageLocal = "local"

// Item はカタログの 1 項目です。
// Kind が file なら Filename、link なら URL が必ず入ります。
type Item struct {
	ID          string    `json:"id"`
	Type        Kind      `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Badge       string    `json:"badge"`
	Version     string    `json:"version"`
	Arch        string    `json:"arch"`
	CreatedAt   time.Time `json:"createdAt"`

	Filename     string `json:"filename,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	Storage      string `json:"storage,omitempty"`
	Size         int64  `json:"size,omitempty"`

	URL string `json:"url,omitempty"`
}

var (
	ErrMissingID   = errors.New("catalog: item id is required")
	ErrMissingName = errors.New("catalog: item name is required")
	ErrUnknownKind = errors.New("catalog: unknown item type")
	ErrFileFields  = errors.New("catalog: file item needs a filename and no url")
	ErrLinkFields  = errors.New("catalog: link item needs a url and no filename")
)

// Validate は種類ごとの必須フィールドを検査します。
func (it *Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(it.Name) == "" {
		return ErrMissingName
	}
	switch it.Type {
	case KindFile:
		if it.Filename == "" || it.URL != "" {
			return ErrFileFields
		}
	case KindLink:
		if it.URL == "" || it.Filename != "" {
			return ErrLinkFields
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

// IsStoredFile は blob ストアにファイル本体がある項目かどうかを返します。
func (it *Item) IsStoredFile() bool {
	return it != nil && it.Type == KindFile && it.Filename != ""
}

// DownloadName はダウンロード時に提示するファイル名です。
func (it *Item) DownloadName() string {
	if it.OriginalName != "" {
		return it.OriginalName
	}
	return it.Filename
}
