// Package storage はアップロードされたファイル（blob）をローカルディスクに保存します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

var (
	// ErrNotFound は指定キーの blob が存在しないときに返ります。
	ErrNotFound = errors.New("storage: blob not found")
	// ErrInvalidKey はディレクトリをまたぐキーなど、保存に使えないキーのときに返ります。
	ErrInvalidKey = errors.New("storage: invalid blob key")
	// ErrExists は同じキーの blob がすでにあるときに返ります。Put は上書きしません。
	ErrExists = errors.New("storage: blob already exists")
)

// Object は読み出し中の blob です。呼び出し側が Close します。
type Object struct {
	io.ReadSeekCloser
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Local はルートディレクトリ直下にキー名のファイルとして blob を置きます。
type Local struct {
	root string
}

// NewLocal はルートディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの解決に失敗しました: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root は保存先ディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// Put は r の内容を key として保存し、書き込んだバイト数を返します。
// key が使用中なら r を読まずに ErrExists を返します。
// 先にキーを O_EXCL で確保し、一時ファイルに書いてから rename で置き換えるので、
// 途中で失敗しても中途半端な blob は残りません。
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := l.path(key)
	if err != nil {
		return 0, err
	}

	reserved, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("保存先の確保に失敗しました: %w", err)
	}
	reserved.Close()
	committed := false
	defer func() {
		if !committed {
			os.Remove(path)
		}
	}()

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return 0, fmt.Errorf("ファイル権限の設定に失敗しました: %w", err)
	}
	// 確保済みの空ファイルを置き換える
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}
	committed = true
	return n, nil
}

// Open は blob を開きます。Content-Type は先頭バイトから判定します。
func (l *Local) Open(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ファイルのオープンに失敗しました: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("ファイル情報の取得に失敗しました: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, ErrNotFound
	}

	contentType := defaultContentType
	if mt, err := mimetype.DetectReader(file); err == nil && mt != nil {
		contentType = mt.String()
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}

	return &Object{
		ReadSeekCloser: file,
		Key:            key,
		Size:           info.Size(),
		ContentType:    contentType,
		ModTime:        info.ModTime(),
	}, nil
}

// Delete は blob を削除します。存在しない場合は何もしません。
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// Exists は blob が存在するかどうかを返します。
func (l *Local) Exists(key string) (bool, error) {
	path, err := l.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (l *Local) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, key), nil
}

// ValidateKey はキーがルート直下の 1 ファイル名として使えるか検証します。
// 名前の途中に ".." を含むこと自体は許可します。
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return ErrInvalidKey
	case strings.ContainsAny(key, `/\`), strings.ContainsRune(key, 0):
		return ErrInvalidKey
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
