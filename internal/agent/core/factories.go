package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/tools/corpus"
	"github.com/mohammad-safakhou/deepresearch/tools/embedding"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// NewLLMProvider creates a new LLM provider based on configuration
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}

	return nil, fmt.Errorf("no valid LLM providers found")
}

// NewSearchProvider builds the search capability: web discovery, page
// fetching, a run-scoped corpus index and LLM summarization.
func NewSearchProvider(cfg *config.Config, llmProvider LLMProvider) (SearchProvider, error) {
	provider := web_search.Provider(cfg.Search.Provider)
	apiKey := ""
	switch provider {
	case web_search.BraveProvider:
		apiKey = cfg.Search.BraveAPIKey
	case web_search.SerperProvider:
		apiKey = cfg.Search.SerperAPIKey
	default:
		// Pick by whichever key is configured, Brave first.
		if cfg.Search.BraveAPIKey != "" {
			provider = web_search.BraveProvider
			apiKey = cfg.Search.BraveAPIKey
		} else if cfg.Search.SerperAPIKey != "" {
			provider = web_search.SerperProvider
			apiKey = cfg.Search.SerperAPIKey
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no web search API key configured")
	}
	searcher, err := web_search.NewWebSearcher(provider, apiKey)
	if err != nil {
		return nil, err
	}

	index, err := corpus.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("corpus index: %w", err)
	}

	return &searchCapability{
		config:   cfg,
		llm:      llmProvider,
		web:      searcher,
		fetcher:  web_fetch.NewFetcher(cfg.Search.FetchTimeout, cfg.Search.MaxChars),
		embedder: embedding.New(llmProvider, cfg.LLM.Routing.Embedding),
		index:    index,
		logger:   log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}, nil
}

// searchCapability answers one planned search: corpus lookup first, then web
// discovery, page ingestion and an LLM summary of everything gathered.
type searchCapability struct {
	config   *config.Config
	llm      LLMProvider
	web      web_search.WebSearcher
	fetcher  *web_fetch.Fetcher
	embedder *embedding.Embedder
	index    *corpus.Index
	logger   *log.Logger
}

func (s *searchCapability) Search(ctx context.Context, item SearchItem) (string, error) {
	var qvec []float32
	if s.embedder.Enabled() {
		vec, err := s.embedder.EmbedOne(ctx, item.Query)
		if err != nil {
			s.logger.Printf("query embedding failed for %q: %v", item.Query, err)
		} else {
			qvec = vec
		}
	}

	corpusHits, err := s.index.Search(item.Query, qvec, s.config.Search.CorpusTopK)
	if err != nil {
		s.logger.Printf("corpus search failed for %q: %v", item.Query, err)
		corpusHits = nil
	}

	results, err := s.web.Discover(ctx, item.Query, s.config.Search.MaxResults, nil, 0)
	if err != nil {
		return "", fmt.Errorf("web search %q: %w", item.Query, err)
	}

	pages := s.ingest(ctx, results)

	prompt := s.createSummaryPrompt(item, corpusHits, results, pages)
	model := s.config.LLM.Routing.Search
	if model == "" {
		model = s.config.LLM.Routing.Fallback
	}
	summary, err := s.llm.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  600,
	})
	if err != nil {
		return "", fmt.Errorf("summarize %q: %w", item.Query, err)
	}
	return strings.TrimSpace(summary), nil
}

// ingest fetches the top discovered pages and adds their text to the corpus
// so later rounds can retrieve it. Fetch failures are logged and skipped.
func (s *searchCapability) ingest(ctx context.Context, results []searchmodels.Result) []web_fetch.Result {
	var pages []web_fetch.Result
	for _, r := range results {
		if len(pages) >= s.config.Search.MaxFetch {
			break
		}
		if s.index.Has(r.URL) {
			continue
		}
		page, err := s.fetcher.Exec(ctx, r.URL)
		if err != nil {
			s.logger.Printf("fetch skipped: %v", err)
			continue
		}
		pages = append(pages, page)

		var vec []float32
		if s.embedder.Enabled() {
			v, err := s.embedder.EmbedOne(ctx, page.Text)
			if err != nil {
				s.logger.Printf("page embedding failed for %s: %v", page.URL, err)
			} else {
				vec = v
			}
		}
		doc := corpus.Doc{ID: page.URL, URL: page.URL, Title: page.Title, Text: page.Text}
		if err := s.index.Add(doc, vec); err != nil {
			s.logger.Printf("corpus add failed for %s: %v", page.URL, err)
		}
	}
	return pages
}

func (s *searchCapability) createSummaryPrompt(item SearchItem, corpusHits []corpus.Hit, results []searchmodels.Result, pages []web_fetch.Result) string {
	var sb strings.Builder
	if len(corpusHits) > 0 {
		sb.WriteString("PREVIOUSLY GATHERED MATERIAL:\n")
		for _, h := range corpusHits {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", h.Title, h.URL, h.Snippet)
		}
		sb.WriteString("\n")
	}
	if len(results) > 0 {
		sb.WriteString("WEB RESULTS:\n")
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
		}
		sb.WriteString("\n")
	}
	for _, p := range pages {
		fmt.Fprintf(&sb, "PAGE: %s (%s)\n%s\n\n", p.Title, p.URL, p.Text)
	}

	return fmt.Sprintf(`You are a research assistant. Given a search term, you search the web for that term and produce a concise summary of the results. The summary must be 2-3 paragraphs and less than 300 words. Capture the main points. Write succinctly, no need to have complete sentences or good grammar. This will be consumed by someone synthesizing a report, so it is vital you capture the essence and ignore any fluff. Do not include any additional commentary other than the summary itself. Prioritize previously gathered material when it already answers the search term, and use the web results to supplement or update it.

Search term: %s
Reason for searching: %s
Priority: %d

MATERIAL:
%s`, item.Query, item.Reason, item.Priority, sb.String())
}

// extractFirstJSON returns the first balanced top-level JSON object in s, or
// an empty string when there is none.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
