// Package web_fetch extracts readable article text from static pages.
package web_fetch

import (
	"context"
	"fmt"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/deepresearch/utils"
)

const (
	DefaultTimeout  = 10 * time.Second
	MaxCharsDefault = 8000
)

// Result is the extracted content of a fetched page.
type Result struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads a page and runs readability extraction over it.
// JS-rendered pages are out of scope; whatever the server returns is parsed.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

func NewFetcher(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
	}
}

func (f *Fetcher) Exec(ctx context.Context, rawURL string) (Result, error) {
	pageURL, err := nurl.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Result{}, fmt.Errorf("extract %s: no readable content", rawURL)
	}
	return Result{
		URL:   rawURL,
		Title: article.Title,
		Text:  utils.Truncate(text, f.maxChars),
	}, nil
}
