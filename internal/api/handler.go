// Package api exposes the sidecar's HTTP surface: an SSE explanation
// endpoint plus small JSON endpoints for settings, model catalogs, notes
// and usage.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/catalog"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/notes"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/prompt"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/settings"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/stream"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/usage"
	"github.com/liaosvcaf/explain-selection-with-ai/pkg/ratelimit"
)

type Handler struct {
	settings settings.Store
	catalog  *catalog.Service
	client   *stream.Client
	notes    *notes.Resolver
	usage    usage.Store
	budget   *ratelimit.Budget
	tracer   trace.Tracer
}

func NewHandler(
	settingsStore settings.Store,
	catalogService *catalog.Service,
	client *stream.Client,
	notesResolver *notes.Resolver,
	usageStore usage.Store,
	budget *ratelimit.Budget,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		settings: settingsStore,
		catalog:  catalogService,
		client:   client,
		notes:    notesResolver,
		usage:    usageStore,
		budget:   budget,
		tracer:   tracer,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// HandleModels serves the normalized catalog for the active provider,
// optionally filtered with ?q=.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	set, err := h.settings.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	models, err := h.catalog.Models(r.Context(), set, r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"provider": set.Provider,
		"models":   models,
	})
}

// HandleInvalidateModels drops the cached catalog so the next listing
// refetches, e.g. after the user changed an API key. Without ?provider=
// every provider's list is dropped.
func (h *Handler) HandleInvalidateModels(w http.ResponseWriter, r *http.Request) {
	p := provider.Type(r.URL.Query().Get("provider"))
	if p == "" {
		h.catalog.InvalidateAll()
	} else if provider.Known(p) {
		h.catalog.Invalidate(p)
	} else {
		respondError(w, http.StatusBadRequest, "unknown provider: "+string(p))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// HandleMenuLabel renders the condensed context-menu label for a selection.
func (h *Handler) HandleMenuLabel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	template := q.Get("template")
	if template == "" {
		template = `Explain "{{selection}}"`
	}

	label := prompt.BuildMenuLabel(template, q.Get("selection"), prompt.DefaultLabelMax)
	respondJSON(w, http.StatusOK, map[string]string{"label": label})
}

func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	set, err := h.settings.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *Handler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var set provider.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !provider.Known(set.Provider) {
		respondError(w, http.StatusBadRequest, "unknown provider: "+string(set.Provider))
		return
	}

	if err := h.settings.Save(r.Context(), set); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// HandleSwitchProvider changes the active provider, resetting endpoint and
// model to that provider's defaults while keeping the prompt templates and
// the OpenRouter credentials.
func (h *Handler) HandleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider provider.Type `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	set, err := h.settings.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	set, err = provider.SwitchProvider(set, req.Provider)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.Save(r.Context(), set); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	logs, err := h.usage.GetUsage(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	totalCost, err := h.usage.GetTotalCost(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_requests": len(logs),
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	})
}
