package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Client talks to an OpenAI-compatible streaming chat endpoint. All
// providers are reached through this one wire shape; per-provider variance
// lives entirely in the resolved Config.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a streaming client. The HTTP client carries no timeout:
// once a stream begins it runs to completion or failure.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Explain posts the system and user prompts to cfg's chat completions
// endpoint and emits the response incrementally. The returned channel is
// closed after a terminal chunk (Done or Err).
func (c *Client) Explain(ctx context.Context, cfg provider.Config, systemPrompt, userPrompt string) (<-chan *Chunk, error) {
	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	for k, v := range cfg.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}

	ch := make(chan *Chunk)

	go func() {
		defer close(ch)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.emit(ctx, ch, &Chunk{Err: &provider.FetchError{Message: err.Error()}})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			c.emit(ctx, ch, &Chunk{Err: &provider.FetchError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(respBody)),
			}})
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					c.emit(ctx, ch, &Chunk{Done: true})
					return
				}
				c.emit(ctx, ch, &Chunk{Err: &provider.FetchError{Message: err.Error()}})
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				c.emit(ctx, ch, &Chunk{Done: true})
				return
			}

			var parsed chatChunk
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				c.emit(ctx, ch, &Chunk{Err: &provider.FetchError{Message: "malformed stream chunk: " + err.Error()}})
				return
			}

			chunk := &Chunk{Usage: parsed.Usage}
			if len(parsed.Choices) > 0 {
				chunk.Content = parsed.Choices[0].Delta.Content
			}
			if chunk.Content == "" && chunk.Usage == nil {
				continue
			}
			if !c.emit(ctx, ch, chunk) {
				return
			}
		}
	}()

	return ch, nil
}

func (c *Client) emit(ctx context.Context, ch chan<- *Chunk, chunk *Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
