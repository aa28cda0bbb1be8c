package brave

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscoverParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "key" {
			t.Errorf("missing subscription token, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "quantum+computing" {
			t.Errorf("unexpected query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://a.example","description":"first"},
			{"title":"B","url":"https://b.example","description":"second"},
			{"title":"C","url":"https://c.example","description":"third"}
		]}}`))
	}))
	defer srv.Close()

	res, err := Search{ApiKey: "key", Endpoint: srv.URL}.Discover(context.Background(), "quantum computing", 2, nil, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results (k cap), got %d", len(res))
	}
	if res[0].Title != "A" || res[0].URL != "https://a.example" || res[0].Snippet != "first" {
		t.Fatalf("unexpected first result: %+v", res[0])
	}
}

func TestDiscoverRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := (Search{ApiKey: "key", Endpoint: srv.URL}).Discover(context.Background(), "q", 3, nil, 0); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}
