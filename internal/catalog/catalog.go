package catalog

import (
	"encoding/json"
	"sort"
	"strings"
)

// ModelInfo is the provider-agnostic shape every listing is normalized to.
// ID is unique within one provider's result set. Name and Pricing are only
// populated when the upstream listing carries them.
type ModelInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Pricing *Pricing `json:"pricing,omitempty"`
}

// Pricing carries per-token rates as decimal strings, exactly as reported
// by the provider. It is either fully populated or absent.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

var chatModelAllowPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}

var chatModelDenyPrefixes = []string{
	"dall-e", "tts-", "whisper", "embedding", "text-embedding", "babbage", "davinci",
}

// FilterOpenAIChatModels keeps models whose id starts with an allow-listed
// chat prefix and not with any deny-listed prefix. The deny list wins when
// both match. The result is sorted ascending by id; filtering is idempotent.
func FilterOpenAIChatModels(models []ModelInfo) []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		if isChatModelID(m.ID) {
			out = append(out, m)
		}
	}
	sortByID(out)
	return out
}

func isChatModelID(id string) bool {
	for _, deny := range chatModelDenyPrefixes {
		if strings.HasPrefix(id, deny) {
			return false
		}
	}
	for _, allow := range chatModelAllowPrefixes {
		if strings.HasPrefix(id, allow) {
			return true
		}
	}
	return false
}

// ParseOpenAIModels normalizes an OpenAI /v1/models payload, keeping only
// chat models. Malformed or partial payloads yield an empty list.
func ParseOpenAIModels(data []byte) []ModelInfo {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return []ModelInfo{}
	}
	models := make([]ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, ModelInfo{ID: m.ID})
	}
	return FilterOpenAIChatModels(models)
}

// ParseOpenRouterModels normalizes an OpenRouter /api/v1/models payload.
// Pricing is carried over only when both the prompt and completion rates are
// present; a missing data field yields an empty list.
func ParseOpenRouterModels(data []byte) []ModelInfo {
	var resp struct {
		Data []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Pricing *struct {
				Prompt     string `json:"prompt"`
				Completion string `json:"completion"`
			} `json:"pricing"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return []ModelInfo{}
	}
	models := make([]ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		info := ModelInfo{ID: m.ID, Name: m.Name}
		if m.Pricing != nil && m.Pricing.Prompt != "" && m.Pricing.Completion != "" {
			info.Pricing = &Pricing{Prompt: m.Pricing.Prompt, Completion: m.Pricing.Completion}
		}
		models = append(models, info)
	}
	sortByID(models)
	return models
}

// ParseOllamaModels normalizes an Ollama /api/tags payload. The listing's
// name field becomes the canonical id; a missing models field yields an
// empty list.
func ParseOllamaModels(data []byte) []ModelInfo {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return []ModelInfo{}
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{ID: m.Name})
	}
	sortByID(models)
	return models
}

// Search filters models by a case-insensitive substring match against id or
// display name. The result never shares backing storage with the input, so
// callers cannot mutate a cached list through it.
func Search(models []ModelInfo, query string) []ModelInfo {
	if query == "" {
		out := make([]ModelInfo, len(models))
		copy(out, models)
		return out
	}
	q := strings.ToLower(query)
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), q) ||
			(m.Name != "" && strings.Contains(strings.ToLower(m.Name), q)) {
			out = append(out, m)
		}
	}
	return out
}

func sortByID(models []ModelInfo) {
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
}
