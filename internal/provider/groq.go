package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Groq is the fast cloud provider, speaking the OpenAI chat-completions
// dialect. It sits first in chains that prefer latency.
type Groq struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewGroq(baseURL, model, apiKey string) *Groq {
	return &Groq{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *Groq) Name() string { return "groq" }

type groqRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type groqResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (g *Groq) Generate(ctx context.Context, system, user string) (string, error) {
	msgs := make([]message, 0, 2)
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: user})

	body, err := json.Marshal(groqRequest{Model: g.model, Messages: msgs})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/openai/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("groq: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding groq response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("groq: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}
