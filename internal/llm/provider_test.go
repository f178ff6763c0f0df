package llm

import (
	"strings"
	"testing"
)

func TestNewProvider(t *testing.T) {
	config := DefaultConfig()
	config.APIKey = "test-key"
	config.Provider = "openai"

	p, err := NewProvider(config)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Expected openai, got %s", p.Name())
	}

	config.Provider = "claude"
	p, err = NewProvider(config)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Expected anthropic, got %s", p.Name())
	}

	config.Provider = "ollama"
	p, err = NewProvider(config)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Expected ollama, got %s", p.Name())
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	config := DefaultConfig()
	config.Provider = "cohere"
	if _, err := NewProvider(config); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestNewProvider_EmptyIsError(t *testing.T) {
	config := DefaultConfig()
	config.Provider = ""
	if _, err := NewProvider(config); err == nil {
		t.Error("Expected error for empty provider")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(DefaultConfig())

	for _, want := range []string{
		"valid JSON",
		"task_response",
		"coherence_cohesion",
		"lexical_resource",
		"grammatical_range",
		"per_criterion",
		"evidence_quotes",
		"0.5 increments",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("System prompt missing %q", want)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt(ScoreRequest{
		Question: "Do you agree or disagree?",
		Essay:    "The government should invest in public transport.",
	})

	if !strings.Contains(prompt, "Do you agree or disagree?") {
		t.Error("User prompt missing question")
	}
	if !strings.Contains(prompt, "The government should invest") {
		t.Error("User prompt missing essay")
	}
	if strings.Contains(prompt, "previous response violated") {
		t.Error("User prompt must not mention violations without a repair hint")
	}
}

func TestBuildUserPrompt_RepairHint(t *testing.T) {
	prompt := BuildUserPrompt(ScoreRequest{
		Essay:      "Some essay.",
		RepairHint: []string{"overall band 6.3 is not on the 0.5 grid"},
	})

	if !strings.Contains(prompt, "overall band 6.3 is not on the 0.5 grid") {
		t.Error("User prompt missing repair violation")
	}
	if !strings.Contains(prompt, "previous response violated") {
		t.Error("User prompt missing repair framing")
	}
}
