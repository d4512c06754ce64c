package stream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/catalog"
)

// State tracks one streaming session's lifecycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// Accumulator collects one streaming session: text, token counts and
// timestamps. It is created when the request begins and discarded when the
// viewer closes.
type Accumulator struct {
	state State
	text  strings.Builder

	promptTokens     int
	completionTokens int

	start      time.Time
	firstToken time.Time
}

func NewAccumulator() *Accumulator {
	return &Accumulator{state: StateIdle, start: time.Now()}
}

// OnChunk folds one incremental chunk into the session. The first
// content-bearing chunk fixes the time-to-first-token; usage overwrites the
// zero-valued counts whenever it arrives.
func (a *Accumulator) OnChunk(c *Chunk) {
	if a.state == StateIdle {
		a.state = StateStreaming
	}
	if c.Content != "" {
		if a.firstToken.IsZero() {
			a.firstToken = time.Now()
		}
		a.text.WriteString(c.Content)
	}
	if c.Usage != nil {
		a.promptTokens = c.Usage.PromptTokens
		a.completionTokens = c.Usage.CompletionTokens
	}
}

// Fail marks the session failed. Accumulated text is preserved.
func (a *Accumulator) Fail() {
	a.state = StateFailed
}

// Complete ends the session and computes the derived statistics.
func (a *Accumulator) Complete(pricing *catalog.Pricing) Stats {
	a.state = StateCompleted
	return a.stats(pricing)
}

// Snapshot computes statistics without ending the session. A failed stream
// still reports the numbers for whatever arrived before the error.
func (a *Accumulator) Snapshot() Stats {
	return a.stats(nil)
}

func (a *Accumulator) State() State { return a.state }

// Text returns whatever has streamed in so far, including after a failure.
func (a *Accumulator) Text() string { return a.text.String() }

// Stats are the derived metrics shown alongside a finished explanation.
type Stats struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	ElapsedMs        int64   `json:"elapsed_ms"`
	FirstTokenMs     int64   `json:"first_token_ms"`
	TokensPerSec     float64 `json:"tokens_per_sec"`
	// Cost is rendered with fixed 6-decimal precision and omitted when no
	// pricing is known or no tokens were reported.
	Cost string `json:"cost,omitempty"`
}

func (a *Accumulator) stats(pricing *catalog.Pricing) Stats {
	elapsed := time.Since(a.start)

	var ttft time.Duration
	if !a.firstToken.IsZero() {
		ttft = a.firstToken.Sub(a.start)
	}

	var tps float64
	if a.completionTokens > 0 && elapsed > 0 {
		tps = float64(a.completionTokens) / elapsed.Seconds()
	}

	return Stats{
		PromptTokens:     a.promptTokens,
		CompletionTokens: a.completionTokens,
		ElapsedMs:        elapsed.Milliseconds(),
		FirstTokenMs:     ttft.Milliseconds(),
		TokensPerSec:     tps,
		Cost:             formatCost(pricing, a.promptTokens, a.completionTokens),
	}
}

func formatCost(pricing *catalog.Pricing, promptTokens, completionTokens int) string {
	if pricing == nil || (promptTokens == 0 && completionTokens == 0) {
		return ""
	}
	promptRate, err := strconv.ParseFloat(pricing.Prompt, 64)
	if err != nil {
		return ""
	}
	completionRate, err := strconv.ParseFloat(pricing.Completion, 64)
	if err != nil {
		return ""
	}
	cost := float64(promptTokens)*promptRate + float64(completionTokens)*completionRate
	return fmt.Sprintf("%.6f", cost)
}
