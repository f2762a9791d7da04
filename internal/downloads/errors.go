package downloads

import "errors"

var (
	// ErrItemNotFound はファイル名に一致する項目がないときに返ります。
	ErrItemNotFound = errors.New("downloads: item not found")
	// ErrNotAFile は項目がリンクなど、配信できる blob を持たないときに返ります。
	ErrNotAFile = errors.New("downloads: item is not a stored file")
	// ErrBlobMissing は項目はあるが blob ストアに本体がないときに返ります。
	ErrBlobMissing = errors.New("downloads: blob missing")
	// ErrNoFile はアップロードに file パートが含まれないときに返ります。
	ErrNoFile = errors.New("downloads: no file part")
)
