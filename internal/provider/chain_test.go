package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeGenerator struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &fakeGenerator{name: "gemini", text: "from gemini"}
	second := &fakeGenerator{name: "groq", text: "from groq"}
	c := NewChain(nil, first, second)

	res, err := c.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "gemini" || res.Text != "from gemini" {
		t.Errorf("result = %+v, want gemini/from gemini", res)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times, want 0", second.calls)
	}
}

func TestChain_FallsThroughInOrder(t *testing.T) {
	first := &fakeGenerator{name: "gemini", err: fmt.Errorf("quota exceeded")}
	second := &fakeGenerator{name: "groq", text: "   "} // whitespace counts as empty
	third := &fakeGenerator{name: "local", text: "from local"}
	c := NewChain(nil, first, second, third)

	res, err := c.Generate(context.Background(), "", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "local" {
		t.Errorf("provider = %q, want local", res.Provider)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", first.calls, second.calls, third.calls)
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain(nil,
		&fakeGenerator{name: "gemini", err: fmt.Errorf("down")},
		&fakeGenerator{name: "local", err: fmt.Errorf("also down")},
	)

	_, err := c.Generate(context.Background(), "", "user")
	if !errors.Is(err, ErrAllUnavailable) {
		t.Errorf("err = %v, want ErrAllUnavailable", err)
	}
}

func TestChain_EmptyChain(t *testing.T) {
	c := NewChain(nil)
	_, err := c.Generate(context.Background(), "", "user")
	if !errors.Is(err, ErrAllUnavailable) {
		t.Errorf("err = %v, want ErrAllUnavailable", err)
	}
}

func TestChain_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeGenerator{name: "gemini", err: fmt.Errorf("canceled mid-flight")}
	second := &fakeGenerator{name: "local", text: "should not be used"}
	c := NewChain(nil, first, second)

	cancel()
	_, err := c.Generate(ctx, "", "user")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if second.calls != 0 {
		t.Errorf("chain kept going after cancellation: %d calls", second.calls)
	}
}

func TestChain_Names(t *testing.T) {
	c := NewChain(nil, &fakeGenerator{name: "groq"}, &fakeGenerator{name: "local"})
	names := c.Names()
	if len(names) != 2 || names[0] != "groq" || names[1] != "local" {
		t.Errorf("Names() = %v", names)
	}
}
