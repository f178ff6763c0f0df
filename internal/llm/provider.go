// Package llm is the grading client boundary. Providers send one essay to an
// external language model and hand back the raw structured payload. Nothing
// returned here is trusted: the payload is a candidate until schema and span
// validation accept it, and call-to-call identity is never assumed even with
// deterministic sampling knobs, since those are requests to the service, not
// guarantees.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkarpov/bandmark/internal/model"
)

// Provider defines the interface for grading providers.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Score runs one grading pass and returns the raw candidate payload
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ScoreRequest contains the input for one grading pass.
type ScoreRequest struct {
	// TaskType identifies the writing task (e.g. "task2")
	TaskType string

	// Question is the optional task prompt the essay answers
	Question string

	// Essay is the source text being scored
	Essay string

	// RepairHint carries schema violations from a failed pass; when set,
	// this call is the single corrective re-request allowed for that pass
	RepairHint []string

	// Model overrides the configured model for this call
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// ScoreResponse contains one raw candidate result.
type ScoreResponse struct {
	// Raw is the unvalidated JSON payload produced by the model
	Raw []byte

	// Model is the model that generated the response
	Model string

	// Token accounting for the call
	InputTokens  int
	OutputTokens int
}

// Config holds grading provider configuration.
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Criteria and caps embedded into the grading contract prompt
	Criteria           []string
	MaxEvidenceQuotes  int
	MaxErrors          int
	MaxSuggestions     int
	MaxSuggestionChars int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	cfg := model.DefaultConfig()
	return ConfigFromModel(cfg.Grader, cfg.Scoring)
}

// ConfigFromModel converts the config tree into a provider config.
func ConfigFromModel(grader model.GraderConfig, scoring model.ScoringConfig) Config {
	return Config{
		Provider:           grader.Provider,
		Model:              grader.Model,
		APIKey:             grader.APIKey,
		BaseURL:            grader.BaseURL,
		Timeout:            grader.Timeout,
		MaxTokens:          grader.MaxTokens,
		Criteria:           scoring.Criteria,
		MaxEvidenceQuotes:  scoring.MaxEvidenceQuotes,
		MaxErrors:          scoring.MaxErrors,
		MaxSuggestions:     scoring.MaxSuggestions,
		MaxSuggestionChars: scoring.MaxSuggestionChars,
		HTTPProxy:          grader.HTTPProxy,
		HTTPSProxy:         grader.HTTPSProxy,
		NoProxy:            grader.NoProxy,
	}
}

// BuildSystemPrompt constructs the grading contract the model must follow.
func BuildSystemPrompt(cfg Config) string {
	return fmt.Sprintf(`You are an experienced examiner scoring essays against a fixed rubric.

CRITICAL INSTRUCTIONS:
1. Respond ONLY in valid JSON format. No explanatory text outside JSON.
2. For each criterion, provide direct verbatim quotes from the essay as evidence.
3. All quotes MUST exist exactly in the essay text.
4. No chain-of-thought reasoning. Only structured JSON output.
5. Band scores: %g-%g in %g increments.

CRITERIA (score each, in this order):
%s

RESPONSE STRUCTURE:
- per_criterion: array of criterion assessments
  - name: criterion name, exactly as listed above
  - band: numeric score (%g-%g, increments of %g)
  - evidence_quotes: array of verbatim quotes (max %d)
  - errors: array of error objects (max %d)
    - span: exact problematic text
    - type: "grammar" | "lexical" | "coherence" | "task" | "other"
    - fix: brief correction
  - suggestions: array of specific improvements (max %d, each <=%d chars)
- overall: overall band (%g-%g, increments of %g)

Ensure all text spans are copied exactly from the essay.`,
		model.BandMin, model.BandMax, model.BandStep,
		formatCriteria(cfg.Criteria),
		model.BandMin, model.BandMax, model.BandStep,
		cfg.MaxEvidenceQuotes, cfg.MaxErrors,
		cfg.MaxSuggestions, cfg.MaxSuggestionChars,
		model.BandMin, model.BandMax, model.BandStep)
}

// BuildUserPrompt constructs the per-call prompt. A repair hint, when
// present, lists the contract violations of the previous attempt.
func BuildUserPrompt(req ScoreRequest) string {
	var b strings.Builder

	if req.Question != "" {
		fmt.Fprintf(&b, "Task Question:\n%s\n\n", req.Question)
	}

	b.WriteString("Score this essay according to the rubric")
	if req.Question != "" {
		b.WriteString(", ensuring alignment with the question")
	}
	fmt.Fprintf(&b, ":\n\n%s\n\n", req.Essay)

	if len(req.RepairHint) > 0 {
		b.WriteString("Your previous response violated the required structure:\n")
		for _, v := range req.RepairHint {
			fmt.Fprintf(&b, "- %s\n", v)
		}
		b.WriteString("Correct every violation and respond again with valid JSON only.\n\n")
	}

	b.WriteString("Provide your assessment in the specified JSON format.")
	return b.String()
}

func formatCriteria(criteria []string) string {
	var b strings.Builder
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}
