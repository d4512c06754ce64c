package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	extratelimit "github.com/vnmchuo/ratelimiter"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/catalog"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/notes"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/stream"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/usage"
	"github.com/liaosvcaf/explain-selection-with-ai/pkg/ratelimit"
)

// Mock Settings Store
type mockSettingsStore struct {
	loadFunc func(ctx context.Context) (provider.Settings, error)
	saveFunc func(ctx context.Context, set provider.Settings) error
	saved    *provider.Settings
}

func (m *mockSettingsStore) Load(ctx context.Context) (provider.Settings, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	return provider.DefaultSettings(), nil
}

func (m *mockSettingsStore) Save(ctx context.Context, set provider.Settings) error {
	m.saved = &set
	if m.saveFunc != nil {
		return m.saveFunc(ctx, set)
	}
	return nil
}

// Mock Usage Store
type mockUsageStore struct {
	logged   chan *usage.Log
	getFunc  func(ctx context.Context, from, to time.Time) ([]*usage.Log, error)
	costFunc func(ctx context.Context, from, to time.Time) (float64, error)
}

func newMockUsageStore() *mockUsageStore {
	return &mockUsageStore{logged: make(chan *usage.Log, 1)}
}

func (m *mockUsageStore) LogUsage(ctx context.Context, log *usage.Log) error {
	m.logged <- log
	return nil
}

func (m *mockUsageStore) GetUsage(ctx context.Context, from, to time.Time) ([]*usage.Log, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, from, to)
	}
	return nil, nil
}

func (m *mockUsageStore) GetTotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	if m.costFunc != nil {
		return m.costFunc(ctx, from, to)
	}
	return 0, nil
}

// Mock Limiter Store
type mockLimiterStore struct {
	allowed bool
	err     error
}

func (m *mockLimiterStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func setupTest(t *testing.T, settingsStore *mockSettingsStore, allowed bool) (*Handler, *mockUsageStore) {
	t.Helper()
	usageStore := newMockUsageStore()
	h := NewHandler(
		settingsStore,
		catalog.NewService(catalog.NewFetcher(), catalog.NewCache()),
		stream.NewClient(),
		notes.NewResolver(t.TempDir()),
		usageStore,
		ratelimit.NewTestBudget(&mockLimiterStore{allowed: allowed}),
		noop.NewTracerProvider().Tracer("test"),
	)
	return h, usageStore
}

func customSettings(baseURL string) provider.Settings {
	set := provider.DefaultSettings()
	set.Provider = provider.TypeCustom
	set.BaseURL = baseURL
	set.Model = "test-model"
	return set
}

func TestHandleExplain_StreamsContentAndStats(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hello"}}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"usage":{"prompt_tokens":12,"completion_tokens":3}}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		return customSettings(upstream.URL), nil
	}}
	h, usageStore := setupTest(t, store, true)

	req := httptest.NewRequest("POST", "/v1/explain", strings.NewReader(`{"selection":"goroutine"}`))
	w := httptest.NewRecorder()
	h.HandleExplain(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `{"content":"Hello"}`) {
		t.Errorf("Expected content event, got: %s", body)
	}
	if !strings.Contains(body, "event: stats") {
		t.Errorf("Expected stats event, got: %s", body)
	}
	if !strings.Contains(body, `"prompt_tokens":12`) {
		t.Errorf("Expected usage in stats, got: %s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Errorf("Expected DONE terminator, got: %s", body)
	}

	select {
	case log := <-usageStore.logged:
		if log.CompletionTokens != 3 || log.Failed {
			t.Errorf("Unexpected usage log: %+v", log)
		}
	case <-time.After(time.Second):
		t.Fatal("Usage was never logged")
	}
}

func TestHandleExplain_ErrorEventPreservesText(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"partial"}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: {not json\n\n"))
	}))
	defer upstream.Close()

	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		return customSettings(upstream.URL), nil
	}}
	h, usageStore := setupTest(t, store, true)

	req := httptest.NewRequest("POST", "/v1/explain", strings.NewReader(`{"selection":"x"}`))
	w := httptest.NewRecorder()
	h.HandleExplain(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Fatalf("Expected error event, got: %s", body)
	}
	if !strings.Contains(body, `"text":"partial"`) {
		t.Errorf("Error event must carry the streamed text, got: %s", body)
	}
	if strings.Contains(body, "data: [DONE]") {
		t.Errorf("Failed stream must not report DONE, got: %s", body)
	}

	log := <-usageStore.logged
	if !log.Failed {
		t.Errorf("Expected failed usage log, got: %+v", log)
	}
}

func TestHandleExplain_BudgetExceeded(t *testing.T) {
	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		return customSettings("http://localhost:1"), nil
	}}
	h, _ := setupTest(t, store, false)

	req := httptest.NewRequest("POST", "/v1/explain", strings.NewReader(`{"selection":"x"}`))
	w := httptest.NewRecorder()
	h.HandleExplain(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestHandleExplain_MissingKey(t *testing.T) {
	// Default settings are openai with an empty key, which never reaches
	// the network.
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	req := httptest.NewRequest("POST", "/v1/explain", strings.NewReader(`{"selection":"x"}`))
	w := httptest.NewRecorder()
	h.HandleExplain(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleExplain_EmptySelection(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	req := httptest.NewRequest("POST", "/v1/explain", strings.NewReader(`{"selection":""}`))
	w := httptest.NewRecorder()
	h.HandleExplain(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleSwitchProvider_ResetsConnectionFields(t *testing.T) {
	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		set := provider.DefaultSettings()
		set.APIKey = "sk-old"
		set.SystemPrompt = "custom system prompt"
		return set, nil
	}}
	h, _ := setupTest(t, store, true)

	req := httptest.NewRequest("POST", "/v1/settings/provider", strings.NewReader(`{"provider":"ollama"}`))
	w := httptest.NewRecorder()
	h.HandleSwitchProvider(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.saved == nil {
		t.Fatal("Settings were never saved")
	}
	if store.saved.Provider != provider.TypeOllama {
		t.Errorf("Expected ollama, got %s", store.saved.Provider)
	}
	if store.saved.APIKey != "" {
		t.Errorf("Switch must reset the API key, got %q", store.saved.APIKey)
	}
	if store.saved.SystemPrompt != "custom system prompt" {
		t.Errorf("Switch must keep the prompt templates, got %q", store.saved.SystemPrompt)
	}
}

func TestHandleSwitchProvider_UnknownProvider(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	req := httptest.NewRequest("POST", "/v1/settings/provider", strings.NewReader(`{"provider":"bedrock"}`))
	w := httptest.NewRecorder()
	h.HandleSwitchProvider(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleModels_ServesCatalog(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"o3-mini"},{"id":"whisper-1"}]}`))
	}))
	defer upstream.Close()

	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		return customSettings(upstream.URL), nil
	}}
	h, _ := setupTest(t, store, true)

	req := httptest.NewRequest("GET", "/v1/models?q=gpt", nil)
	w := httptest.NewRecorder()
	h.HandleModels(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Models []catalog.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].ID != "gpt-4o" {
		t.Errorf("Expected the filtered catalog, got %+v", resp.Models)
	}
}

func TestHandleInvalidateModels_QueryParamForcesRefetch(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer upstream.Close()

	store := &mockSettingsStore{loadFunc: func(ctx context.Context) (provider.Settings, error) {
		return customSettings(upstream.URL), nil
	}}
	h, _ := setupTest(t, store, true)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.HandleModels(w, httptest.NewRequest("GET", "/v1/models", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}
	if calls != 1 {
		t.Fatalf("Expected one upstream fetch before invalidation, got %d", calls)
	}

	w := httptest.NewRecorder()
	h.HandleInvalidateModels(w, httptest.NewRequest("POST", "/v1/models/invalidate?provider=custom", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleModels(w, httptest.NewRequest("GET", "/v1/models", nil))
	if calls != 2 {
		t.Errorf("Expected a refetch after invalidation, got %d calls", calls)
	}
}

func TestHandleInvalidateModels_UnknownProvider(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	w := httptest.NewRecorder()
	h.HandleInvalidateModels(w, httptest.NewRequest("POST", "/v1/models/invalidate?provider=bedrock", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleMenuLabel_CapsLength(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	long := strings.Repeat("a", 80)
	req := httptest.NewRequest("GET", "/v1/menu-label?selection="+long, nil)
	w := httptest.NewRecorder()
	h.HandleMenuLabel(w, req)

	var resp struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Label) > 50 {
		t.Errorf("Label exceeds cap: %q", resp.Label)
	}
	if !strings.Contains(resp.Label, "...") {
		t.Errorf("Expected ellipsis in truncated label: %q", resp.Label)
	}
}

func TestHandleSaveNote_ConflictNeedsDecision(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	body := `{"name":"My Note","content":"first"}`
	w := httptest.NewRecorder()
	h.HandleSaveNote(w, httptest.NewRequest("POST", "/v1/notes", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.HandleSaveNote(w, httptest.NewRequest("POST", "/v1/notes", strings.NewReader(body)))
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 on collision, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "needs_decision") {
		t.Errorf("Expected needs_decision, got: %s", w.Body.String())
	}

	// The client relays the user's choice of a numbered variant.
	w = httptest.NewRecorder()
	h.HandleNumberedNote(w, httptest.NewRequest("POST", "/v1/notes/numbered", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for numbered variant, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "My Note 1.md") {
		t.Errorf("Expected numbered path, got: %s", w.Body.String())
	}
}

func TestHandleAppendNote_MissingNote(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	body := `{"name":"Nope","content":"more"}`
	w := httptest.NewRecorder()
	h.HandleAppendNote(w, httptest.NewRequest("POST", "/v1/notes/append", strings.NewReader(body)))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHandleUsage_InvalidDate(t *testing.T) {
	h, _ := setupTest(t, &mockSettingsStore{}, true)

	req := httptest.NewRequest("GET", "/v1/usage?from=yesterday", nil)
	w := httptest.NewRecorder()
	h.HandleUsage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleUsage_Totals(t *testing.T) {
	usageStore := newMockUsageStore()
	usageStore.getFunc = func(ctx context.Context, from, to time.Time) ([]*usage.Log, error) {
		return []*usage.Log{{Model: "gpt-4o"}, {Model: "gpt-4o"}}, nil
	}
	usageStore.costFunc = func(ctx context.Context, from, to time.Time) (float64, error) {
		return 0.25, nil
	}

	h := NewHandler(
		&mockSettingsStore{},
		catalog.NewService(catalog.NewFetcher(), catalog.NewCache()),
		stream.NewClient(),
		notes.NewResolver(t.TempDir()),
		usageStore,
		ratelimit.NewTestBudget(&mockLimiterStore{allowed: true}),
		noop.NewTracerProvider().Tracer("test"),
	)

	req := httptest.NewRequest("GET", "/v1/usage", nil)
	w := httptest.NewRecorder()
	h.HandleUsage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"total_requests":2`) || !strings.Contains(body, "0.25") {
		t.Errorf("Unexpected usage summary: %s", body)
	}
}
