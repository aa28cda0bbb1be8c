// Package corpus keeps an in-memory index of page text ingested during a
// research run, so later search rounds can reuse material fetched earlier.
package corpus

import (
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/deepresearch/tools/embedding"
	"github.com/mohammad-safakhou/deepresearch/utils"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Doc is an ingested document.
type Doc struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Hit is a single retrieval result.
type Hit struct {
	DocID   string
	URL     string
	Title   string
	Snippet string
	Score   float64
	Rank    int
}

// Index combines a bleve BM25 index with in-memory vectors for small corpora.
type Index struct {
	mu      sync.RWMutex
	bleve   bleve.Index
	meta    map[string]Doc
	vectors []embedding.Vec
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{
		bleve: idx,
		meta:  make(map[string]Doc),
	}, nil
}

// Add indexes a document. vec may be nil when embeddings are disabled.
func (ix *Index) Add(doc Doc, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.meta[doc.ID]; !exists && vec != nil {
		ix.vectors = append(ix.vectors, embedding.Vec{DocID: doc.ID, Vec: vec})
	}
	ix.meta[doc.ID] = doc
	return ix.bleve.Index(doc.ID, doc)
}

// Has reports whether a document is already indexed.
func (ix *Index) Has(docID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.meta[docID]
	return ok
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta)
}

// Search retrieves the top k hits, fusing BM25 with vector similarity when a
// query vector is supplied.
func (ix *Index) Search(q string, qvec []float32, k int) ([]Hit, error) {
	if k <= 0 || k > 50 {
		k = 10
	}
	bmHits, err := ix.BM25Search(q, k)
	if err != nil {
		return nil, err
	}
	if qvec == nil {
		return bmHits, nil
	}
	vecHits := ix.VectorSearch(qvec, k)
	return ix.FuseRRF(bmHits, vecHits, k), nil
}

func (ix *Index) BM25Search(q string, k int) ([]Hit, error) {
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := ix.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		doc := ix.meta[hit.ID]
		out = append(out, Hit{
			DocID: hit.ID, URL: doc.URL, Title: doc.Title,
			Snippet: utils.Truncate(doc.Text, 300),
			Score:   hit.Score, Rank: i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (ix *Index) VectorSearch(q []float32, k int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	type scored struct {
		id    string
		score float64
	}
	var scoreds []scored
	for _, v := range ix.vectors {
		scoreds = append(scoreds, scored{id: v.DocID, score: cosine(q, v.Vec)})
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })
	var out []Hit
	for i, sc := range scoreds {
		doc := ix.meta[sc.id]
		out = append(out, Hit{
			DocID: sc.id, URL: doc.URL, Title: doc.Title,
			Snippet: utils.Truncate(doc.Text, 300),
			Score:   sc.score, Rank: i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out
}

func (ix *Index) FuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.DocID]
			if !ok {
				m[h.DocID] = &agg{item: h}
				x = m[h.DocID]
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	fused := make([]Hit, 0, len(m))
	for _, v := range m {
		h := v.item
		h.Score = v.score
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > k {
		fused = fused[:k]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
