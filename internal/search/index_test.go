package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/letters-archive/internal/storage"
)

func day(s string) time.Time {
	d, err := time.Parse(storage.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func openMem(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func hitIDs(hits []*Hit) []int64 {
	var ids []int64
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func TestIndexAndSearch(t *testing.T) {
	idx := openMem(t)

	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 1, Date: day("1943-03-05"), Description: "Letter to Mother", Content: "The weather at camp is cold and rainy."}))
	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 2, Date: day("1944-07-04"), Description: "Postcard from Paris", Content: "Fireworks tonight."}))

	hits, err := idx.Search("camp", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hitIDs(hits))
	assert.NotEmpty(t, hits[0].Fragments["Content"])

	hits, err = idx.Search("paris", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, hitIDs(hits))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSearch_DateRangeIsInclusive(t *testing.T) {
	idx := openMem(t)

	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 1, Date: day("1943-01-01"), Content: "rain"}))
	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 2, Date: day("1943-12-31"), Content: "rain"}))
	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 3, Date: day("1944-01-01"), Content: "rain"}))

	hits, err := idx.Search("rain", day("1943-01-01"), day("1943-12-31"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, hitIDs(hits))
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := openMem(t)

	hits, err := idx.Search("anything", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDelete(t *testing.T) {
	idx := openMem(t)

	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 7, Date: day("1943-01-01"), Content: "gone soon"}))
	require.NoError(t, idx.Delete(7))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRebuild(t *testing.T) {
	idx := openMem(t)

	var letters []*storage.Letter
	for i := 1; i <= 450; i++ {
		letters = append(letters, &storage.Letter{ID: int64(i), Date: day("1943-01-01"), Content: "letter"})
	}

	var last, total int
	require.NoError(t, idx.Rebuild(letters, func(c, tot int) { last, total = c, tot }))
	assert.Equal(t, 450, last)
	assert.Equal(t, 450, total)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(450), count)
}

func TestOpen_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.IndexLetter(&storage.Letter{ID: 1, Date: day("1943-01-01"), Content: "kept"}))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
