package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Fetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "1943"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1943", "p1.png"), []byte("page one"), 0o644))

	s := NewLocalStore(dir)
	ctx := context.Background()

	data, err := s.Fetch(ctx, "1943/p1.png")
	require.NoError(t, err)
	assert.Equal(t, "page one", string(data))

	_, err = s.Fetch(ctx, "1943/p2.png")
	assert.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "1943/p2.png", nf.Ref)
}

func TestLocalStore_RejectsEscapingRefs(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	for _, ref := range []string{"", "../secret.png", "a/../../b.png", "/etc/passwd", ".."} {
		_, err := s.Fetch(context.Background(), ref)
		require.Error(t, err, ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}
}

// fakeBucket serves objects the way the JSON API does for alt=media
type fakeBucket struct {
	objects  map[string]string
	failures int32 // leading requests answered with status
	status   int
	requests atomic.Int32
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := b.requests.Add(1)
	if n <= b.failures {
		http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, b.status)
		return
	}

	_, object, ok := strings.Cut(r.URL.Path, "/b/archive/o/")
	if !ok || r.URL.Query().Get("alt") != "media" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	body, ok := b.objects[object]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"No such object"}}`)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	fmt.Fprint(w, body)
}

func newGCS(t *testing.T, b *fakeBucket) *GCSStore {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	cfg := DefaultGCSConfig("archive")
	cfg.Prefix = "scans/"
	cfg.Endpoint = srv.URL + "/storage/v1/"
	cfg.Anonymous = true
	cfg.RequestsPerSecond = 1000
	cfg.BaseBackoff = time.Millisecond

	s, err := NewGCSStore(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func TestGCSStore_Fetch(t *testing.T) {
	b := &fakeBucket{objects: map[string]string{
		"scans/1943-03-05 - Letter to Mother - Page 1 of 2.png": "png bytes",
	}}
	s := newGCS(t, b)

	data, err := s.Fetch(context.Background(), "1943-03-05 - Letter to Mother - Page 1 of 2.png")
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestGCSStore_NotFound(t *testing.T) {
	b := &fakeBucket{objects: map[string]string{}}
	s := newGCS(t, b)

	_, err := s.Fetch(context.Background(), "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), b.requests.Load(), "not found is not retried")
}

func TestGCSStore_RetriesServerErrors(t *testing.T) {
	b := &fakeBucket{
		objects:  map[string]string{"scans/p.png": "ok"},
		failures: 2,
		status:   http.StatusServiceUnavailable,
	}
	s := newGCS(t, b)

	data, err := s.Fetch(context.Background(), "p.png")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), b.requests.Load())
}

func TestGCSStore_GivesUp(t *testing.T) {
	b := &fakeBucket{
		objects:  map[string]string{"scans/p.png": "ok"},
		failures: 100,
		status:   http.StatusTooManyRequests,
	}
	s := newGCS(t, b)

	_, err := s.Fetch(context.Background(), "p.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(4), b.requests.Load())
}

func TestGCSStore_ClientErrorNotRetried(t *testing.T) {
	b := &fakeBucket{failures: 100, status: http.StatusForbidden}
	s := newGCS(t, b)

	_, err := s.Fetch(context.Background(), "p.png")
	require.Error(t, err)
	assert.Equal(t, int32(1), b.requests.Load())
}

func TestNewGCSStore_RequiresBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), GCSConfig{Anonymous: true})
	assert.Error(t, err)
}

// countingStore records how often each ref reaches the backing store
type countingStore struct {
	mu     sync.Mutex
	calls  map[string]int
	images map[string]string
}

func newCountingStore(images map[string]string) *countingStore {
	return &countingStore{calls: map[string]int{}, images: images}
}

func (s *countingStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	s.calls[ref]++
	s.mu.Unlock()

	data, ok := s.images[ref]
	if !ok {
		return nil, &NotFoundError{Ref: ref}
	}
	return []byte(data), nil
}

func (s *countingStore) count(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ref]
}

func TestCache_HitsSkipStore(t *testing.T) {
	backing := newCountingStore(map[string]string{"a.png": "A"})
	c, err := NewCache(backing, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(ctx, "a.png")
		require.NoError(t, err)
		assert.Equal(t, "A", string(data))
	}
	assert.Equal(t, 1, backing.count("a.png"))
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	backing := newCountingStore(map[string]string{})
	c, err := NewCache(backing, 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), "gone.png")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 2, backing.count("gone.png"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_Bounded(t *testing.T) {
	backing := newCountingStore(map[string]string{"a": "A", "b": "B", "c": "C"})
	c, err := NewCache(backing, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		_, err := c.Fetch(ctx, ref)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	_, err = c.Fetch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.count("a"), "least recently used entry was evicted")
}

func TestFetchAll(t *testing.T) {
	backing := newCountingStore(map[string]string{"p1": "one", "p2": "two", "p4": "four"})
	refs := []string{"p1", "p2", "p3", "p4"}

	results := FetchAll(context.Background(), backing, refs, 2)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, refs[i], r.Ref)
	}
	assert.Equal(t, "one", string(results[0].Data))
	assert.Equal(t, "two", string(results[1].Data))
	assert.ErrorIs(t, results[2].Err, ErrNotFound)
	assert.Equal(t, "four", string(results[3].Data))
	assert.NoError(t, results[3].Err)
}

func TestFetchAll_Empty(t *testing.T) {
	assert.Empty(t, FetchAll(context.Background(), newCountingStore(nil), nil, 0))
}
