package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProvider_Score_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var apiReq ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if apiReq.Stream {
			t.Error("Expected stream=false")
		}
		if apiReq.Format != "json" {
			t.Errorf("Expected format json, got %s", apiReq.Format)
		}

		resp := ollamaResponse{
			Model:           apiReq.Model,
			Response:        samplePayload,
			Done:            true,
			PromptEvalCount: 70,
			EvalCount:       25,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Model = "llama3.1:8b"
	config.Timeout = 5

	provider, err := NewOllamaProvider(config)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Score(context.Background(), ScoreRequest{Essay: "text"})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if string(resp.Raw) != samplePayload {
		t.Errorf("Unexpected raw payload: %s", resp.Raw)
	}
	if resp.InputTokens != 70 || resp.OutputTokens != 25 {
		t.Errorf("Unexpected token counts: in=%d out=%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaProvider_Score_RequiresModel(t *testing.T) {
	config := DefaultConfig()
	config.Model = ""

	provider, err := NewOllamaProvider(config)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err = provider.Score(context.Background(), ScoreRequest{Essay: "text"}); err == nil {
		t.Fatal("Expected error for missing model")
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL

	provider, err := NewOllamaProvider(config)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}
}
