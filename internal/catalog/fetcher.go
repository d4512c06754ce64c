package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Fetcher retrieves raw model listings over HTTP and normalizes them.
// Parsing is total: a payload the parser does not understand degrades to an
// empty catalog instead of an error.
type Fetcher struct {
	client *http.Client

	// OpenRouterBaseURL is overridable for tests; the resolver pins the
	// production value regardless of stored settings.
	OpenRouterBaseURL string
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:            &http.Client{Timeout: 15 * time.Second},
		OpenRouterBaseURL: provider.OpenRouterBaseURL,
	}
}

// Fetch lists models for the provider active in s.
func (f *Fetcher) Fetch(ctx context.Context, s provider.Settings) ([]ModelInfo, error) {
	switch s.Provider {
	case provider.TypeOpenRouter:
		body, err := f.get(ctx, f.OpenRouterBaseURL+"/models", "")
		if err != nil {
			return nil, err
		}
		return ParseOpenRouterModels(body), nil
	case provider.TypeOllama:
		root := provider.DeriveOllamaBaseURL(s.BaseURL)
		body, err := f.get(ctx, root+"/api/tags", "")
		if err != nil {
			return nil, err
		}
		return ParseOllamaModels(body), nil
	default:
		cfg := provider.Resolve(s)
		url := strings.TrimSuffix(cfg.BaseURL, "/") + "/models"
		body, err := f.get(ctx, url, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return ParseOpenAIModels(body), nil
	}
}

func (f *Fetcher) get(ctx context.Context, url, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &provider.FetchError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.FetchError{Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &provider.FetchError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}
