package extract

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"seedling/internal/provider"
)

type fakeSource struct {
	concepts []string
	err      error
}

func (f *fakeSource) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	return f.concepts, f.err
}

func TestExtract_UsesSource(t *testing.T) {
	e := New(&fakeSource{concepts: []string{"Osmosis", "cell membrane"}}, nil)

	got := e.Extract(context.Background(), "what is osmosis in a cell membrane")
	want := []string{"osmosis", "cell membrane"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_PhraseTokenDedup(t *testing.T) {
	// "neural" and "network" are both covered by the phrase; "gradient" is not.
	e := New(&fakeSource{concepts: []string{"neural network", "neural", "network", "gradient"}}, nil)

	got := e.Extract(context.Background(), "")
	want := []string{"neural network", "gradient"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_DuplicatesAndStopWords(t *testing.T) {
	e := New(&fakeSource{concepts: []string{"entropy", "Entropy ", "the", "ab", "entropy"}}, nil)

	got := e.Extract(context.Background(), "")
	want := []string{"entropy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_FallbackOnSourceError(t *testing.T) {
	e := New(&fakeSource{err: fmt.Errorf("backend down")}, nil)

	got := e.Extract(context.Background(), "Explain the mitochondria powerhouse theory")
	want := []string{"mitochondria", "powerhouse", "theory"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_NilSourceTokenizes(t *testing.T) {
	e := New(nil, nil)

	got := e.Extract(context.Background(), "What does photosynthesis mean?")
	want := []string{"photosynthesis"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

type fakeGen struct {
	text string
	err  error
}

func (f *fakeGen) Generate(ctx context.Context, system, user string) (provider.Result, error) {
	if f.err != nil {
		return provider.Result{}, f.err
	}
	return provider.Result{Text: f.text, Provider: "fake"}, nil
}

func TestLLMSource_ParsesFencedJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"bare", `{"concepts":["osmosis","diffusion"]}`, []string{"osmosis", "diffusion"}},
		{"fenced", "```json\n{\"concepts\":[\"osmosis\"]}\n```", []string{"osmosis"}},
		{"prose around", "Sure! Here you go: {\"concepts\":[\"osmosis\"]} Hope that helps.", []string{"osmosis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLLMSource(&fakeGen{text: tt.text})
			got, err := s.ExtractConcepts(context.Background(), "input")
			if err != nil {
				t.Fatalf("ExtractConcepts: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("concepts = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLLMSource_GarbageIsAnError(t *testing.T) {
	s := NewLLMSource(&fakeGen{text: "no json here at all"})
	if _, err := s.ExtractConcepts(context.Background(), "input"); err == nil {
		t.Fatal("expected parse error")
	}

	s = NewLLMSource(&fakeGen{err: fmt.Errorf("all providers down")})
	if _, err := s.ExtractConcepts(context.Background(), "input"); err == nil {
		t.Fatal("expected generation error")
	}
}
