// Package stream consumes OpenAI-compatible streaming chat completions and
// accumulates text, usage and timing for one explanation request.
package stream

import (
	"errors"
	"fmt"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Chunk is one incremental unit of a streamed completion. Content and Usage
// are both optional; usage typically arrives once, on the terminal chunk.
type Chunk struct {
	Content string
	Usage   *Usage
	Done    bool
	Err     error
}

// Usage carries the token counts reported by the provider. Counts are
// trusted verbatim; nothing here estimates tokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// fallback sentence prepended to every user-facing stream failure
const genericFailure = "Something went wrong while generating the explanation."

// UserMessage renders a stream failure for display, keeping the specific
// error and, when available, the HTTP status code.
func UserMessage(err error) string {
	var fetchErr *provider.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d)", genericFailure, fetchErr.Message, fetchErr.StatusCode)
	}
	return fmt.Sprintf("%s %v", genericFailure, err)
}
