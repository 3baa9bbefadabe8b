package search

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/renderinc/letters-archive/internal/storage"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedLetter represents a letter in the search index
type IndexedLetter struct {
	ID          string
	Content     string
	Description string
	Date        time.Time
	DateText    string
}

// Hit is one full-text match
type Hit struct {
	ID        int64
	Score     float64
	Fragments map[string][]string // Highlighted snippets
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	var idx bleve.Index
	var err error

	// Try to open existing index
	idx, err = bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenMem creates an in-memory index
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping indexes content and description as English text and the
// date both as a datetime for range filters and as searchable text
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = "en"

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", idFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Description", descFieldMapping)
	docMapping.AddFieldMappingsAt("Date", bleve.NewDateTimeFieldMapping())
	docMapping.AddFieldMappingsAt("DateText", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = "en" // query strings without a field go through _all

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// FromLetter builds the index entry for a stored letter
func FromLetter(l *storage.Letter) *IndexedLetter {
	return &IndexedLetter{
		ID:          docID(l.ID),
		Content:     l.Content,
		Description: l.Description,
		Date:        l.Date,
		DateText:    l.Date.Format(storage.DateLayout),
	}
}

// IndexLetter adds or replaces the entry for a letter
func (i *Index) IndexLetter(l *storage.Letter) error {
	doc := FromLetter(l)
	return i.index.Index(doc.ID, doc)
}

// Delete removes a letter from the index
func (i *Index) Delete(id int64) error {
	return i.index.Delete(docID(id))
}

// Search runs a query string (quotes, +/-, fuzzy ~) restricted to letters
// dated within [from, to]. Zero bounds are open. All hits are returned.
func (i *Index) Search(queryStr string, from, to time.Time) ([]*Hit, error) {
	total, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	q := query.Query(bleve.NewQueryStringQuery(queryStr))
	if !from.IsZero() || !to.IsZero() {
		inclusive := true
		dates := bleve.NewDateRangeInclusiveQuery(from, endOfDay(to), &inclusive, &inclusive)
		dates.SetField("Date")
		q = bleve.NewConjunctionQuery(q, dates)
	}

	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]*Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad document id %q: %w", h.ID, err)
		}
		hits = append(hits, &Hit{ID: id, Score: h.Score, Fragments: h.Fragments})
	}

	return hits, nil
}

// Rebuild re-indexes every stored letter in batches
func (i *Index) Rebuild(letters []*storage.Letter, progress func(current, total int)) error {
	const batchSize = 200

	batch := i.index.NewBatch()
	for n, l := range letters {
		doc := FromLetter(l)
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}

		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
		}
		if progress != nil {
			progress(n+1, len(letters))
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

// Count returns the number of letters in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// endOfDay makes a date-only upper bound include the whole day
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Nanosecond)
}
