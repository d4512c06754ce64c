package provider

import "strings"

// PlaceholderAPIKey replaces an empty configured key. Some downstream clients
// reject a literally empty credential even when the endpoint performs no
// authentication, e.g. local inference servers.
const PlaceholderAPIKey = "no-key"

// Config holds the concrete connection parameters for one request. It is
// derived from Settings on every request, never stored.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	DefaultHeaders map[string]string
}

// Resolve maps settings to connection parameters for the active provider.
//
// OpenRouter is special-cased: the base URL is pinned to the OpenRouter API
// root regardless of any stored custom base URL, credentials and model come
// from the OpenRouter-specific fields, and the optional attribution headers
// are included only when non-empty. The headers map is nil, not empty, when
// neither attribution value is set.
func Resolve(s Settings) Config {
	var cfg Config
	if s.Provider == TypeOpenRouter {
		cfg = Config{
			BaseURL: OpenRouterBaseURL,
			APIKey:  s.OpenRouterAPIKey,
			Model:   s.OpenRouterModel,
		}
		var headers map[string]string
		if s.OpenRouterReferer != "" || s.OpenRouterTitle != "" {
			headers = make(map[string]string)
			if s.OpenRouterReferer != "" {
				headers["HTTP-Referer"] = s.OpenRouterReferer
			}
			if s.OpenRouterTitle != "" {
				headers["X-Title"] = s.OpenRouterTitle
			}
		}
		cfg.DefaultHeaders = headers
	} else {
		cfg = Config{
			BaseURL: s.BaseURL,
			APIKey:  s.APIKey,
			Model:   s.Model,
		}
	}

	if cfg.APIKey == "" {
		cfg.APIKey = PlaceholderAPIKey
	}
	return cfg
}

// Validate checks that the active provider has the credentials it needs.
// It runs before any network call; local and custom endpoints may be keyless.
func Validate(s Settings) error {
	switch s.Provider {
	case TypeOpenAI:
		if s.APIKey == "" {
			return &ConfigurationError{Field: "api_key", Reason: "an OpenAI API key is required"}
		}
	case TypeOpenRouter:
		if s.OpenRouterAPIKey == "" {
			return &ConfigurationError{Field: "openrouter_api_key", Reason: "an OpenRouter API key is required"}
		}
	}
	return nil
}

// DeriveOllamaBaseURL turns a configured OpenAI-compatible base URL into the
// Ollama server root by stripping a trailing /v1 or /v1/ suffix. An empty
// base URL falls back to the local default.
func DeriveOllamaBaseURL(baseURL string) string {
	if baseURL == "" {
		return OllamaDefaultBaseURL
	}
	trimmed := strings.TrimSuffix(baseURL, "/")
	trimmed = strings.TrimSuffix(trimmed, "/v1")
	return trimmed
}
