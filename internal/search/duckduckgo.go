package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGo scrapes the HTML (non-JS) results page. No API key required,
// which makes it the default first backend.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	return &DuckDuckGo{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) (string, error) {
	u := d.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	// The HTML endpoint rejects requests without a browser-ish UA.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; seedling/1.0)")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing result page: %w", err)
	}

	var snippets []string
	doc.Find(".result__snippet").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if maxResults > 0 && i >= maxResults {
			return false
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			snippets = append(snippets, text)
		}
		return true
	})

	return strings.Join(snippets, " "), nil
}
