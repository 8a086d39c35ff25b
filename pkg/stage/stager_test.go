package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

// fakeStore serves in-memory files with optional per-path delays and
// injected transient failures
type fakeStore struct {
	mu       sync.Mutex
	files    map[string][]byte
	delays   map[string]time.Duration
	failures map[string]int // remaining transient failures per path
	fetches  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:    map[string][]byte{},
		delays:   map[string]time.Duration{},
		failures: map[string]int{},
		fetches:  map[string]int{},
	}
}

func (f *fakeStore) List(ctx context.Context, dir string) ([]transfer.Entry, error) {
	return nil, nil
}

func (f *fakeStore) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.fetches[path]++
	remaining := f.failures[path]
	if remaining > 0 {
		f.failures[path] = remaining - 1
	}
	content, ok := f.files[path]
	delay := f.delays[path]
	f.mu.Unlock()

	if remaining > 0 {
		return nil, &transfer.Error{Kind: transfer.KindConnect, Path: path, Err: errors.New("connection reset")}
	}
	if !ok {
		return nil, &transfer.Error{Kind: transfer.KindNotFound, Path: path, Err: errors.New("no such file")}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return io.NopCloser(strings.NewReader(string(content))), nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) fetchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[path]
}

func checksumOf(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	l := zerolog.New(zerolog.NewTestWriter(t))
	return l.WithContext(context.Background())
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
		ShouldRetry: transfer.IsRetryable,
	}
}

func testProduct(t *testing.T, n int) (catalog.Product, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	refs := make([]catalog.ImageRef, 0, n)
	for i := 1; i <= n; i++ {
		path := fmt.Sprintf("1/0/%d/10%d.jpg", i, i)
		content := []byte(fmt.Sprintf("image-bytes-%d", i))
		store.files[path] = content
		refs = append(refs, catalog.ImageRef{RemotePath: path, Checksum: checksumOf(content)})
	}
	p, err := catalog.NewProduct(10, "SKU-10", "Blue Shirt", 7, refs)
	require.NoError(t, err)
	return p, store
}

func TestStageNamesFollowReferenceOrder(t *testing.T) {
	product, store := testProduct(t, 5)

	// Make earlier refs finish last so completion order is reversed
	for i, ref := range product.Images {
		store.delays[ref.RemotePath] = time.Duration(len(product.Images)-i) * 10 * time.Millisecond
	}

	stager := NewStager(store, Config{
		BaseDir:     t.TempDir(),
		Concurrency: 5,
		Retry:       fastRetry(1),
	})

	images, failures, err := stager.Stage(testCtx(t), product)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, images, 5)

	for i, img := range images {
		assert.Equal(t, i+1, img.Seq)
		assert.Equal(t, fmt.Sprintf("blue-shirt-%d.jpg", i+1), img.Filename())
		assert.Equal(t, product.Images[i].Checksum, img.Checksum)

		content, rerr := os.ReadFile(img.LocalPath)
		require.NoError(t, rerr)
		assert.Equal(t, fmt.Sprintf("image-bytes-%d", i+1), string(content))
	}
}

func TestStageChecksumMismatchFailsSingleImage(t *testing.T) {
	product, store := testProduct(t, 5)

	// Corrupt the third image on the wire
	store.files[product.Images[2].RemotePath] = []byte("corrupted")

	stager := NewStager(store, Config{
		BaseDir:     t.TempDir(),
		Concurrency: 2,
		Retry:       fastRetry(3),
	})

	images, failures, err := stager.Stage(testCtx(t), product)
	require.NoError(t, err)

	assert.Len(t, images, 4)
	require.Len(t, failures, 1)
	assert.Equal(t, 3, failures[0].Seq)

	var ierr *IntegrityError
	require.ErrorAs(t, failures[0].Err, &ierr)

	// Integrity failures are not retried
	assert.Equal(t, 1, store.fetchCount(product.Images[2].RemotePath))

	// The failed image's final name must not exist
	_, serr := os.Stat(filepath.Join(stager.cfg.BaseDir, "blue-shirt", "blue-shirt-3.jpg"))
	assert.True(t, os.IsNotExist(serr))
}

func TestStageRetriesTransientFailures(t *testing.T) {
	product, store := testProduct(t, 1)
	store.failures[product.Images[0].RemotePath] = 2 // two connection resets, then success

	stager := NewStager(store, Config{
		BaseDir: t.TempDir(),
		Retry:   fastRetry(3),
	})

	images, failures, err := stager.Stage(testCtx(t), product)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, images, 1)
	assert.Equal(t, 3, store.fetchCount(product.Images[0].RemotePath))
}

func TestStageLeavesNoTempFiles(t *testing.T) {
	product, store := testProduct(t, 3)
	store.files[product.Images[1].RemotePath] = []byte("corrupted")

	base := t.TempDir()
	stager := NewStager(store, Config{BaseDir: base, Retry: fastRetry(1)})

	_, _, err := stager.Stage(testCtx(t), product)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "blue-shirt"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestClean(t *testing.T) {
	product, store := testProduct(t, 1)
	base := t.TempDir()
	stager := NewStager(store, Config{BaseDir: base, Retry: fastRetry(1)})

	_, _, err := stager.Stage(testCtx(t), product)
	require.NoError(t, err)

	require.NoError(t, stager.Clean())
	_, serr := os.Stat(base)
	assert.True(t, os.IsNotExist(serr))
}
