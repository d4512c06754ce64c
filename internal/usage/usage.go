package usage

import (
	"context"
	"time"
)

// Log records one completed or failed explanation request.
type Log struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	ElapsedMs        int64     `json:"elapsed_ms"`
	FirstTokenMs     int64     `json:"first_token_ms"`
	Failed           bool      `json:"failed"`
	CreatedAt        time.Time `json:"created_at"`
}

type Store interface {
	LogUsage(ctx context.Context, log *Log) error
	GetUsage(ctx context.Context, from, to time.Time) ([]*Log, error)
	GetTotalCost(ctx context.Context, from, to time.Time) (float64, error)
}
