package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSearcher struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestChain_FirstSubstantialResultWins(t *testing.T) {
	long := strings.Repeat("osmosis is diffusion of water ", 5)
	first := &fakeSearcher{name: "duckduckgo", text: long}
	second := &fakeSearcher{name: "google", text: "unused"}
	c := NewChain(nil, 50, first, second)

	res := c.Search(context.Background(), "osmosis", 5)
	if res.Backend != "duckduckgo" {
		t.Errorf("backend = %q, want duckduckgo", res.Backend)
	}
	if second.calls != 0 {
		t.Errorf("second backend called %d times, want 0", second.calls)
	}
}

func TestChain_ThinResultFallsThrough(t *testing.T) {
	long := strings.Repeat("plenty of snippet text here ", 4)
	tests := []struct {
		name  string
		first *fakeSearcher
	}{
		{"error", &fakeSearcher{name: "duckduckgo", err: fmt.Errorf("blocked")}},
		{"empty", &fakeSearcher{name: "duckduckgo", text: ""}},
		{"below threshold", &fakeSearcher{name: "duckduckgo", text: "too short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := &fakeSearcher{name: "google", text: long}
			c := NewChain(nil, 50, tt.first, second)

			res := c.Search(context.Background(), "q", 5)
			if res.Backend != "google" {
				t.Errorf("backend = %q, want google", res.Backend)
			}
		})
	}
}

func TestChain_AllEmptyIsNotAnError(t *testing.T) {
	c := NewChain(nil, 50,
		&fakeSearcher{name: "duckduckgo", err: fmt.Errorf("blocked")},
		&fakeSearcher{name: "google", text: ""},
	)

	res := c.Search(context.Background(), "q", 5)
	if res.Text != "" || res.Backend != "" {
		t.Errorf("res = %+v, want zero Result", res)
	}
}

const ddgSample = `<html><body>
<div class="result">
  <a class="result__snippet">Osmosis is the movement of <b>water</b> molecules.</a>
</div>
<div class="result">
  <a class="result__snippet">Across a semipermeable membrane.</a>
</div>
<div class="result">
  <a class="result__snippet">Third snippet should be cut.</a>
</div>
</body></html>`

func TestDuckDuckGo_ParsesSnippets(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, ddgSample)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL)
	text, err := d.Search(context.Background(), "what is osmosis", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := "Osmosis is the movement of water molecules. Across a semipermeable membrane."
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if gotQuery != "what is osmosis" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUA == "" {
		t.Error("no User-Agent sent")
	}
}

func TestDuckDuckGo_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL)
	if _, err := d.Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestGoogleCSE_ParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "k" || q.Get("cx") != "engine" {
			t.Errorf("credentials = key %q cx %q", q.Get("key"), q.Get("cx"))
		}
		if q.Get("num") != "3" {
			t.Errorf("num = %q, want 3", q.Get("num"))
		}
		fmt.Fprint(w, `{"items":[{"snippet":"first part."},{"snippet":"second part."}]}`)
	}))
	defer srv.Close()

	g := NewGoogleCSE(srv.URL, "k", "engine")
	text, err := g.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if text != "first part. second part." {
		t.Errorf("text = %q", text)
	}
}

func TestGoogleCSE_NoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	g := NewGoogleCSE(srv.URL, "k", "cx")
	text, err := g.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}
