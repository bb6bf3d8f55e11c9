package learning

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DictionaryValidator checks single-word candidates against a dictionary
// API. A 404 means the word does not exist and the candidate should be
// dropped from pending; transport errors mean "could not check".
type DictionaryValidator struct {
	baseURL    string
	httpClient *http.Client
}

// NewDictionaryValidator targets a dictionaryapi.dev-compatible endpoint,
// e.g. https://api.dictionaryapi.dev/api/v2/entries/en.
func NewDictionaryValidator(baseURL string) *DictionaryValidator {
	return &DictionaryValidator{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Validate reports whether the word exists. The error is non-nil only when
// the check itself could not run.
func (v *DictionaryValidator) Validate(ctx context.Context, word string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("dictionary request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("dictionary: unexpected status %d", resp.StatusCode)
	}
}
