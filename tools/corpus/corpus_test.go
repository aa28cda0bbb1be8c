package corpus

import (
	"testing"
)

func addDoc(t *testing.T, ix *Index, id, title, text string, vec []float32) {
	t.Helper()
	if err := ix.Add(Doc{ID: id, URL: "https://example.com/" + id, Title: title, Text: text}, vec); err != nil {
		t.Fatalf("Add %s: %v", id, err)
	}
}

func TestBM25SearchFindsDistinctiveTerm(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	addDoc(t, ix, "a", "Batteries", "solid state electrolyte research for automotive batteries", nil)
	addDoc(t, ix, "b", "Weather", "tomorrow will be sunny with light winds", nil)

	hits, err := ix.BM25Search("electrolyte", 5)
	if err != nil {
		t.Fatalf("BM25Search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "a" {
		t.Fatalf("expected single hit for doc a, got %+v", hits)
	}
	if hits[0].Snippet == "" {
		t.Fatalf("expected snippet to be populated")
	}
}

func TestVectorSearchRanksByCosine(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	addDoc(t, ix, "close", "Close", "text", []float32{1, 0})
	addDoc(t, ix, "far", "Far", "text", []float32{0, 1})

	hits := ix.VectorSearch([]float32{0.9, 0.1}, 2)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocID != "close" {
		t.Fatalf("expected closest vector first, got %q", hits[0].DocID)
	}
}

func TestFuseRRFPrefersDocsInBothLists(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	a := []Hit{{DocID: "both", Rank: 2}, {DocID: "bm25only", Rank: 1}}
	b := []Hit{{DocID: "both", Rank: 1}, {DocID: "veconly", Rank: 2}}

	fused := ix.FuseRRF(a, b, 3)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}
	if fused[0].DocID != "both" {
		t.Fatalf("expected doc present in both lists to rank first, got %q", fused[0].DocID)
	}
	if fused[0].Rank != 1 {
		t.Fatalf("expected re-assigned rank 1, got %d", fused[0].Rank)
	}
}

func TestSearchWithoutVectorFallsBackToBM25(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	addDoc(t, ix, "a", "Fusion", "tokamak plasma confinement milestones", nil)

	hits, err := ix.Search("tokamak", nil, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "a" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if !ix.Has("a") || ix.Len() != 1 {
		t.Fatalf("index bookkeeping wrong: has=%t len=%d", ix.Has("a"), ix.Len())
	}
}
