package downloads

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/download-gate/internal/catalog"
	"github.com/yourusername/download-gate/internal/kv"
	"github.com/yourusername/download-gate/internal/storage"
)

var testNow = time.UnixMilli(1700000000000).UTC()

type stubTokens map[string]bool

func (s stubTokens) CheckDownloadToken(ctx context.Context, token string) (bool, error) {
	return s[token], nil
}

type flakyBlobs struct {
	*storage.Local
	deleteErr error
}

func (f *flakyBlobs) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Local.Delete(ctx, key)
}

type recordingScheduler struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingScheduler) ScheduleBlobDelete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	changes   []string
	downloads []string
}

func (r *countingRecorder) ObserveCatalogChange(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, action)
}

func (r *countingRecorder) ObserveDownload(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, outcome)
}

type fixture struct {
	kv       *kv.Memory
	catalog  *catalog.Store
	blobs    *flakyBlobs
	cleanup  *recordingScheduler
	recorder *countingRecorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	seq := 0
	mem := kv.NewMemory()
	cat := catalog.NewStore(mem,
		catalog.WithClock(func() time.Time { return testNow }),
		catalog.WithIDGenerator(func() string {
			seq++
			return "item-" + strconv.Itoa(seq)
		}),
	)
	f := &fixture{
		kv:       mem,
		catalog:  cat,
		blobs:    &flakyBlobs{Local: local},
		cleanup:  &recordingScheduler{},
		recorder: &countingRecorder{},
	}
	f.svc = NewService(cat, f.blobs, WithCleanupScheduler(f.cleanup), WithRecorder(f.recorder))
	return f
}

func (f *fixture) putBlob(t *testing.T, key string, r io.Reader) {
	t.Helper()
	_, err := f.blobs.Put(context.Background(), key, r)
	require.NoError(t, err)
}

var errDiskGone = errors.New("disk gone")
