package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/minios-linux/fillkit/batch"
)

func testItems() []batch.Item {
	return []batch.Item{
		{
			Key:     "CRM_DEAL_DELETE",
			File:    "crm/deal.php",
			Context: map[string]string{"en": "Delete deal"},
			Targets: []string{"ru", "de"},
		},
	}
}

func TestLocalClientTranslate(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"`+
			"```json\\n"+`{\"CRM_DEAL_DELETE\": {\"ru\": \"Удалить сделку\", \"de\": \"Deal löschen\"}}`+"\\n```"+`"}}]}`)
	}))
	defer srv.Close()

	c := newLocalClient(Config{
		Transport: TransportLocal,
		BaseURL:   srv.URL,
		APIKey:    "sk-test",
		Model:     "qwen3-30b",
	})
	res, err := c.Translate(context.Background(), testItems(), 500)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("request path = %q, want /v1/chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotReq.Model != "qwen3-30b" {
		t.Errorf("model = %q, want qwen3-30b", gotReq.Model)
	}
	if gotReq.MaxTokens != 500 {
		t.Errorf("max_tokens = %d, want 500", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", gotReq.Messages)
	}
	if got := res["CRM_DEAL_DELETE"]["ru"]; got != "Удалить сделку" {
		t.Errorf("ru = %q, want Удалить сделку", got)
	}
	if got := res["CRM_DEAL_DELETE"]["de"]; got != "Deal löschen" {
		t.Errorf("de = %q, want Deal löschen", got)
	}
}

func TestLocalClientEndpointSuffix(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:11434", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1/", "http://localhost:11434/v1/chat/completions"},
	}
	for _, tt := range tests {
		c := newLocalClient(Config{BaseURL: tt.base})
		if c.endpoint != tt.want {
			t.Errorf("base %q: endpoint = %q, want %q", tt.base, c.endpoint, tt.want)
		}
	}
}

func TestLocalClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newLocalClient(Config{BaseURL: srv.URL})
	if _, err := c.Translate(context.Background(), testItems(), 100); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestLocalClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"message": "context length exceeded"}}`)
	}))
	defer srv.Close()

	c := newLocalClient(Config{BaseURL: srv.URL})
	_, err := c.Translate(context.Background(), testItems(), 100)
	if err == nil {
		t.Fatal("expected error from error field")
	}
}

func TestMLXClientTranslate(t *testing.T) {
	var gotReq mlxRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("request path = %q, want /translate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		fmt.Fprint(w, `{"content": "<think>short strings, keep placeholders</think>{\"CRM_DEAL_DELETE\": {\"ru\": \"Удалить сделку\", \"de\": \"Deal löschen\"}}"}`)
	}))
	defer srv.Close()

	c := newMLXClient(Config{Transport: TransportMLX, BaseURL: srv.URL})
	res, err := c.Translate(context.Background(), testItems(), 800)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	if gotReq.EnableThinking {
		t.Error("enable_thinking should be false")
	}
	if gotReq.MaxTokens != 800 {
		t.Errorf("max_tokens = %d, want 800", gotReq.MaxTokens)
	}
	if got := res["CRM_DEAL_DELETE"]["ru"]; got != "Удалить сделку" {
		t.Errorf("ru = %q, want Удалить сделку", got)
	}
}

func TestMLXClientReload(t *testing.T) {
	var reloaded bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/reload" {
			reloaded = true
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newMLXClient(Config{BaseURL: srv.URL, SettleDelay: 10 * time.Millisecond})
	start := time.Now()
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if !reloaded {
		t.Error("reload endpoint was not hit")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Reload returned before the settle delay")
	}
}

func TestMLXClientReloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newMLXClient(Config{BaseURL: srv.URL, SettleDelay: time.Hour})
	if err := c.Reload(ctx); err == nil {
		t.Fatal("expected context error during settle delay")
	}
}

func TestMLXClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": "", "error": "model load failed"}`)
	}))
	defer srv.Close()

	c := newMLXClient(Config{BaseURL: srv.URL})
	if _, err := c.Translate(context.Background(), testItems(), 100); err == nil {
		t.Fatal("expected error from error field")
	}
}

func TestNewDispatch(t *testing.T) {
	for _, transport := range []string{TransportOpenAI, TransportLocal, TransportMLX} {
		if _, err := New(Config{Transport: transport, BaseURL: "http://localhost:1"}); err != nil {
			t.Errorf("New(%q) failed: %v", transport, err)
		}
	}
	if _, err := New(Config{Transport: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestBuildUserPromptNumbersItems(t *testing.T) {
	items := []batch.Item{
		{Key: "A", File: "f.php", Context: map[string]string{"en": "One"}, Targets: []string{"ru"}},
		{Key: "B", File: "f.php", Context: map[string]string{"en": "Two"}, Targets: []string{"ru"}},
	}
	prompt := BuildUserPrompt(items)
	for _, want := range []string{"1. ", "2. ", `"key":"A"`, `"translate_to":["ru"]`, "2 keys.", "ru (Русский)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestResponseSchemaShape(t *testing.T) {
	data := ResponseSchema(testItems())

	var schema struct {
		Type       string   `json:"type"`
		Required   []string `json:"required"`
		Additional bool     `json:"additionalProperties"`
		Properties map[string]struct {
			Required []string `json:"required"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema.Type != "object" || schema.Additional {
		t.Errorf("top level: type=%q additionalProperties=%v", schema.Type, schema.Additional)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "CRM_DEAL_DELETE" {
		t.Errorf("required = %v", schema.Required)
	}
	key := schema.Properties["CRM_DEAL_DELETE"]
	if len(key.Required) != 2 || key.Required[0] != "de" || key.Required[1] != "ru" {
		t.Errorf("key required langs = %v, want [de ru]", key.Required)
	}
}
