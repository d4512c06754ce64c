package provider

// Type identifies which upstream LLM service the assistant talks to.
type Type string

const (
	TypeOpenAI     Type = "openai"
	TypeOpenRouter Type = "openrouter"
	TypeOllama     Type = "ollama"
	TypeCustom     Type = "custom"
)

// Known reports whether t is one of the supported provider tags.
func Known(t Type) bool {
	switch t {
	case TypeOpenAI, TypeOpenRouter, TypeOllama, TypeCustom:
		return true
	}
	return false
}

// Settings is the flat record the host persists. Exactly one provider is
// active at a time; the generic BaseURL/APIKey/Model fields belong to the
// active provider, except OpenRouter which keeps its own credential and model
// fields so switching back and forth does not clobber them.
type Settings struct {
	Provider Type `json:"provider"`

	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`

	OpenRouterAPIKey  string `json:"openrouter_api_key"`
	OpenRouterModel   string `json:"openrouter_model"`
	OpenRouterReferer string `json:"openrouter_referer"`
	OpenRouterTitle   string `json:"openrouter_title"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

const (
	OpenAIBaseURL        = "https://api.openai.com/v1/"
	OpenRouterBaseURL    = "https://openrouter.ai/api/v1"
	OllamaDefaultBaseURL = "http://localhost:11434"

	defaultSystemPrompt = "You are a helpful assistant that explains text. " +
		"Explain the selected passage clearly and concisely, using the surrounding context when it helps."
	defaultUserPrompt = "Explain the following selection:\n\n{{selection}}\n\nContext:\n\n{{context}}"
)

// per-provider connection defaults, applied when the active provider changes
type connDefaults struct {
	BaseURL string
	Model   string
	APIKey  string
}

var defaultsTable = map[Type]connDefaults{
	TypeOpenAI:     {BaseURL: OpenAIBaseURL, Model: "gpt-4o"},
	TypeOpenRouter: {BaseURL: OpenRouterBaseURL, Model: "openai/gpt-4o"},
	TypeOllama:     {BaseURL: OllamaDefaultBaseURL + "/v1", Model: "llama3.1"},
	TypeCustom:     {},
}

// DefaultSettings returns the hard-coded startup settings. Stored settings
// are merged over this value so missing keys pick up the defaults.
func DefaultSettings() Settings {
	return Settings{
		Provider:     TypeOpenAI,
		BaseURL:      OpenAIBaseURL,
		Model:        "gpt-4o",
		SystemPrompt: defaultSystemPrompt,
		UserPrompt:   defaultUserPrompt,
	}
}

// SwitchProvider returns a copy of s with the active provider changed and the
// generic connection fields reset to the new provider's defaults. Prompt
// templates and the OpenRouter-specific fields survive a switch.
func SwitchProvider(s Settings, to Type) (Settings, error) {
	if !Known(to) {
		return s, &ConfigurationError{Field: "provider", Reason: "unknown provider " + string(to)}
	}
	d := defaultsTable[to]
	s.Provider = to
	s.BaseURL = d.BaseURL
	s.Model = d.Model
	s.APIKey = d.APIKey
	return s, nil
}
