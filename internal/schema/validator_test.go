package schema

import (
	"strings"
	"testing"

	"github.com/pkarpov/bandmark/internal/model"
)

func testValidator() *Validator {
	return NewValidator(model.DefaultConfig().Scoring)
}

func validPayload() string {
	return `{
		"per_criterion": [
			{"name": "task_response", "band": 6.5, "evidence_quotes": ["the government should"], "errors": [], "suggestions": ["Develop the second argument further."]},
			{"name": "coherence_cohesion", "band": 6.0, "evidence_quotes": [], "errors": [], "suggestions": []},
			{"name": "lexical_resource", "band": 7.0, "evidence_quotes": [], "errors": [{"span": "a good advices", "type": "lexical", "fix": "good advice"}], "suggestions": []},
			{"name": "grammatical_range", "band": 6.0, "evidence_quotes": [], "errors": [], "suggestions": []}
		],
		"overall": 6.5
	}`
}

func TestValidator_ValidPayload(t *testing.T) {
	v := testValidator()

	candidate, violations := v.Validate([]byte(validPayload()))
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
	if candidate == nil {
		t.Fatal("expected a candidate result")
	}
	if candidate.Overall != 6.5 {
		t.Errorf("overall = %v, want 6.5", candidate.Overall)
	}
	if len(candidate.PerCriterion) != 4 {
		t.Fatalf("expected 4 criteria, got %d", len(candidate.PerCriterion))
	}
	if candidate.PerCriterion[2].Errors[0].Type != model.ErrorLexical {
		t.Errorf("unexpected error type: %s", candidate.PerCriterion[2].Errors[0].Type)
	}
}

func TestValidator_OffGridBand(t *testing.T) {
	v := testValidator()

	payload := strings.Replace(validPayload(), `"band": 6.5`, `"band": 6.3`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for off-grid band")
	}
	if len(violations) == 0 || !strings.Contains(violations[0], "grid") {
		t.Errorf("expected grid violation, got %v", violations)
	}
}

func TestValidator_MissingOverall(t *testing.T) {
	v := testValidator()

	payload := strings.Replace(validPayload(), `"overall": 6.5`, `"overall": null`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for missing overall")
	}
	found := false
	for _, viol := range violations {
		if strings.Contains(viol, "overall") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an overall violation, got %v", violations)
	}
}

func TestValidator_UnknownErrorCategory(t *testing.T) {
	v := testValidator()

	payload := strings.Replace(validPayload(), `"type": "lexical"`, `"type": "spelling"`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for unknown error category")
	}
	found := false
	for _, viol := range violations {
		if strings.Contains(viol, "spelling") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a category violation, got %v", violations)
	}
}

func TestValidator_EvidenceCap(t *testing.T) {
	v := testValidator()

	payload := strings.Replace(validPayload(),
		`"evidence_quotes": ["the government should"]`,
		`"evidence_quotes": ["a", "b", "c", "d"]`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for evidence cap breach")
	}
	found := false
	for _, viol := range violations {
		if strings.Contains(viol, "evidence quotes exceeds") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a cap violation, got %v", violations)
	}
}

func TestValidator_SuggestionLengthCap(t *testing.T) {
	v := testValidator()

	long := strings.Repeat("x", 201)
	payload := strings.Replace(validPayload(),
		`"suggestions": ["Develop the second argument further."]`,
		`"suggestions": ["`+long+`"]`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for over-long suggestion")
	}
	if len(violations) == 0 {
		t.Error("expected at least one violation")
	}
}

func TestValidator_SuggestionCapCountsCharacters(t *testing.T) {
	v := testValidator()

	// 200 multi-byte runes is 600 bytes but still within the 200-char cap.
	long := strings.Repeat("é", 200)
	payload := strings.Replace(validPayload(),
		`"suggestions": ["Develop the second argument further."]`,
		`"suggestions": ["`+long+`"]`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate == nil {
		t.Fatalf("expected acceptance for 200-character suggestion, got %v", violations)
	}

	payload = strings.Replace(validPayload(),
		`"suggestions": ["Develop the second argument further."]`,
		`"suggestions": ["`+long+`é"]`, 1)
	if candidate, _ := v.Validate([]byte(payload)); candidate != nil {
		t.Fatal("expected rejection for 201-character suggestion")
	}
}

func TestValidator_MissingCriterion(t *testing.T) {
	v := testValidator()

	payload := strings.Replace(validPayload(), `"name": "grammatical_range"`, `"name": "task_response"`, 1)
	candidate, violations := v.Validate([]byte(payload))
	if candidate != nil {
		t.Fatal("expected rejection for duplicate/missing criterion")
	}
	if len(violations) == 0 {
		t.Error("expected violations for duplicate and missing criterion")
	}
}

func TestValidator_RepairsBrokenJSON(t *testing.T) {
	v := testValidator()

	// Markdown-fenced payload, as models sometimes return despite instructions.
	fenced := "```json\n" + validPayload() + "\n```"
	candidate, violations := v.Validate([]byte(fenced))
	if len(violations) != 0 {
		t.Fatalf("expected fenced JSON to be repaired, got %v", violations)
	}
	if candidate == nil || candidate.Overall != 6.5 {
		t.Error("expected repaired candidate with overall 6.5")
	}
}

func TestValidator_UnparseablePayload(t *testing.T) {
	v := testValidator()

	candidate, violations := v.Validate([]byte("I would rate this essay a solid 7."))
	if candidate != nil {
		t.Fatal("expected rejection for non-JSON payload")
	}
	if len(violations) != 1 || !strings.Contains(violations[0], "JSON") {
		t.Errorf("expected a JSON violation, got %v", violations)
	}
}
