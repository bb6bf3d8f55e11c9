package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GoogleCSE queries the Programmable Search JSON API. It needs an API key
// and an engine id, so it runs second in the chain.
type GoogleCSE struct {
	baseURL    string
	apiKey     string
	cx         string
	httpClient *http.Client
}

func NewGoogleCSE(baseURL, apiKey, cx string) *GoogleCSE {
	return &GoogleCSE{
		baseURL:    baseURL,
		apiKey:     apiKey,
		cx:         cx,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GoogleCSE) Name() string { return "google" }

type googleResponse struct {
	Items []struct {
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GoogleCSE) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 10
	}
	params := url.Values{
		"key": {g.apiKey},
		"cx":  {g.cx},
		"q":   {query},
		"num": {strconv.Itoa(maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google search: unexpected status %d", resp.StatusCode)
	}

	var result googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding google response: %w", err)
	}

	var snippets []string
	for _, item := range result.Items {
		if s := strings.TrimSpace(item.Snippet); s != "" {
			snippets = append(snippets, s)
		}
	}
	return strings.Join(snippets, " "), nil
}
