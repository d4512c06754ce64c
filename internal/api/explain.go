package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/prompt"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/stream"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/usage"
)

type explainRequest struct {
	Selection string `json:"selection"`
	Context   string `json:"context"`
}

// crude chars-per-token estimate used only for the budget reservation
const charsPerToken = 4

// HandleExplain streams an explanation of the selected text as SSE. Content
// arrives as data events, a final stats event carries tokens and timing, and
// a failure mid-stream produces an error event that still reports the text
// streamed so far.
func (h *Handler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Selection == "" {
		respondError(w, http.StatusBadRequest, "selection is required")
		return
	}

	set, err := h.settings.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := provider.Validate(set); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	estimated := (len(req.Selection)+len(req.Context))/charsPerToken + 1000
	allowed, err := h.budget.Allow(r.Context(), string(set.Provider), estimated)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusTooManyRequests, "token budget exceeded")
		return
	}

	cfg := provider.Resolve(set)
	requestID := GetRequestID(r.Context())

	ctx, span := h.tracer.Start(r.Context(), "explain.stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("provider", string(set.Provider)),
		attribute.String("model", cfg.Model),
	)

	systemPrompt := prompt.Build(set.SystemPrompt, req.Selection, req.Context)
	userPrompt := prompt.Build(set.UserPrompt, req.Selection, req.Context)

	ch, err := h.client.Explain(ctx, cfg, systemPrompt, userPrompt)
	if err != nil {
		respondError(w, http.StatusBadGateway, stream.UserMessage(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	acc := stream.NewAccumulator()
	failed := false

	for chunk := range ch {
		if chunk.Err != nil {
			acc.Fail()
			failed = true
			writeEvent(w, flusher, "error", map[string]string{
				"error": stream.UserMessage(chunk.Err),
				"text":  acc.Text(),
			})
			break
		}
		if chunk.Done {
			break
		}

		acc.OnChunk(chunk)
		if chunk.Content != "" {
			writeEvent(w, flusher, "", map[string]string{"content": chunk.Content})
		}
	}

	stats := h.completeStats(ctx, acc, set, cfg.Model, failed)
	if !failed {
		writeEvent(w, flusher, "stats", stats)
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	go func() {
		_ = h.usage.LogUsage(context.Background(), &usage.Log{
			RequestID:        requestID,
			Provider:         string(set.Provider),
			Model:            cfg.Model,
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.CompletionTokens,
			CostUSD:          costFloat(stats.Cost),
			ElapsedMs:        stats.ElapsedMs,
			FirstTokenMs:     stats.FirstTokenMs,
			Failed:           failed,
		})
	}()
}

func (h *Handler) completeStats(ctx context.Context, acc *stream.Accumulator, set provider.Settings, model string, failed bool) stream.Stats {
	if failed {
		return acc.Snapshot()
	}
	info, ok := h.catalog.Lookup(ctx, set, model)
	if !ok {
		return acc.Complete(nil)
	}
	return acc.Complete(info.Pricing)
}

// costFloat converts a rendered cost back to a number for the usage log.
// An absent cost logs as zero.
func costFloat(cost string) float64 {
	if cost == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cost, 64)
	if err != nil {
		return 0
	}
	return f
}

// writeEvent emits one SSE event. An empty name produces a bare data event.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
