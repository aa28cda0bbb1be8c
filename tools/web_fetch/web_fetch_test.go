package web_fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Solid State Batteries</title></head>
<body>
<article>
<h1>Solid State Batteries</h1>
<p>Solid state batteries replace the liquid electrolyte with a solid ceramic or polymer layer,
which raises energy density and removes the main fire risk of lithium-ion cells. Several
manufacturers have announced pilot production lines for automotive packs.</p>
<p>Commercialization timelines remain uncertain because interface resistance between the solid
electrolyte and the electrodes degrades cycle life at automotive charge rates. Research groups
are testing sulfide and oxide electrolytes to address this.</p>
</article>
</body></html>`

func TestExecExtractsArticleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 0)
	res, err := f.Exec(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.Contains(res.Text, "solid ceramic or polymer layer") {
		t.Fatalf("expected article body in text, got %q", res.Text)
	}
	if res.Title != "Solid State Batteries" {
		t.Fatalf("unexpected title %q", res.Title)
	}
}

func TestExecTruncatesToMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 50)
	res, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Text) > 53 { // 50 + ellipsis
		t.Fatalf("expected truncated text, got %d chars", len(res.Text))
	}
}

func TestExecFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 0)
	if _, err := f.Exec(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404 page")
	}
}
