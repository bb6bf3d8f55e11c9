package rethink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"seedling/internal/provider"
)

type fakeGen struct {
	generate func(ctx context.Context, system, user string) (provider.Result, error)
}

func (g *fakeGen) Generate(ctx context.Context, system, user string) (provider.Result, error) {
	return g.generate(ctx, system, user)
}

type fakeWeb struct{ text string }

func (w *fakeWeb) WebContext(context.Context, string) string { return w.text }

func TestRethink_FullFlow(t *testing.T) {
	quality := &fakeGen{generate: func(_ context.Context, system, user string) (provider.Result, error) {
		if strings.Contains(system, "researching") {
			return provider.Result{Text: "water moves toward higher solute concentration"}, nil
		}
		if !strings.Contains(user, "Previous wrong answer: water flows uphill") {
			t.Fatalf("correction prompt missing wrong answer: %q", user)
		}
		if !strings.Contains(user, "higher solute concentration") {
			t.Fatalf("correction prompt missing research notes: %q", user)
		}
		return provider.Result{Text: "That was wrong. Osmosis moves water across a membrane."}, nil
	}}
	e := NewEngine(quality, &fakeGen{generate: func(context.Context, string, string) (provider.Result, error) {
		t.Fatal("fast generator should not be used when quality works")
		return provider.Result{}, nil
	}}, nil, nil)

	var stages []string
	got := e.Rethink(context.Background(), "how does osmosis work", "water flows uphill",
		func(s string) { stages = append(stages, s) })

	if got != "That was wrong. Osmosis moves water across a membrane." {
		t.Fatalf("answer = %q", got)
	}
	if len(stages) != 2 {
		t.Fatalf("stages = %v, want two progress lines", stages)
	}
}

func TestRethink_WebFallbackWhenQualityDown(t *testing.T) {
	down := &fakeGen{generate: func(context.Context, string, string) (provider.Result, error) {
		return provider.Result{}, errors.New("quota exhausted")
	}}
	fast := &fakeGen{generate: func(_ context.Context, _, user string) (provider.Result, error) {
		if !strings.Contains(user, "snippets from the web") {
			t.Fatalf("web context not passed through: %q", user)
		}
		return provider.Result{Text: "corrected from web"}, nil
	}}
	e := NewEngine(down, fast, &fakeWeb{text: "snippets from the web"}, nil)

	got := e.Rethink(context.Background(), "q", "wrong", nil)
	if got != "corrected from web" {
		t.Fatalf("answer = %q", got)
	}
}

func TestRethink_RawResearchWhenSynthesisFails(t *testing.T) {
	quality := &fakeGen{generate: func(_ context.Context, system, _ string) (provider.Result, error) {
		if strings.Contains(system, "researching") {
			return provider.Result{Text: "fresh facts"}, nil
		}
		return provider.Result{}, errors.New("synthesis down")
	}}
	fast := &fakeGen{generate: func(context.Context, string, string) (provider.Result, error) {
		return provider.Result{}, errors.New("also down")
	}}
	e := NewEngine(quality, fast, nil, nil)

	got := e.Rethink(context.Background(), "q", "wrong", nil)
	if !strings.Contains(got, "fresh facts") {
		t.Fatalf("raw research not surfaced: %q", got)
	}
	if !strings.Contains(got, "could not compose") {
		t.Fatalf("partial-answer preamble missing: %q", got)
	}
}

func TestRethink_NothingAvailable(t *testing.T) {
	down := &fakeGen{generate: func(context.Context, string, string) (provider.Result, error) {
		return provider.Result{}, errors.New("down")
	}}
	e := NewEngine(down, down, nil, nil)

	if got := e.Rethink(context.Background(), "q", "wrong", nil); got != "" {
		t.Fatalf("answer = %q, want empty when nothing is available", got)
	}
}

func TestRethink_SynthesizesWithoutResearch(t *testing.T) {
	// Quality is absent entirely; the fast generator still composes a
	// correction from the prompt and wrong answer alone.
	fast := &fakeGen{generate: func(_ context.Context, system, _ string) (provider.Result, error) {
		if strings.Contains(system, "researching") {
			return provider.Result{}, errors.New("not used for research")
		}
		return provider.Result{Text: "best effort correction"}, nil
	}}
	e := NewEngine(nil, fast, nil, nil)

	if got := e.Rethink(context.Background(), "q", "wrong", nil); got != "best effort correction" {
		t.Fatalf("answer = %q", got)
	}
}
