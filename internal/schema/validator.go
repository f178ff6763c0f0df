package schema

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"

	"github.com/pkarpov/bandmark/internal/model"
)

// Validator enforces the structural contract on raw grader output. It is a
// pure judgment function: it either yields a typed CandidateResult or a list
// of violations the caller can embed in a single corrective re-request.
type Validator struct {
	criteria map[string]bool
	order    []string
	caps     model.ScoringConfig
}

// NewValidator creates a validator for the configured criteria and caps.
func NewValidator(cfg model.ScoringConfig) *Validator {
	criteria := make(map[string]bool, len(cfg.Criteria))
	for _, name := range cfg.Criteria {
		criteria[name] = true
	}
	return &Validator{
		criteria: criteria,
		order:    append([]string(nil), cfg.Criteria...),
		caps:     cfg,
	}
}

// Raw shapes use pointers so that absent fields are distinguishable from
// zero values.
type rawError struct {
	Span *string `json:"span"`
	Type *string `json:"type"`
	Fix  *string `json:"fix"`
}

type rawCriterion struct {
	Name           *string    `json:"name"`
	Band           *float64   `json:"band"`
	EvidenceQuotes []string   `json:"evidence_quotes"`
	Errors         []rawError `json:"errors"`
	Suggestions    []string   `json:"suggestions"`
}

type rawResult struct {
	PerCriterion []rawCriterion `json:"per_criterion"`
	Overall      *float64       `json:"overall"`
}

// Validate parses and checks a raw grader payload. On success the returned
// violation list is empty. On failure the candidate is nil and the list
// describes every breach found, so a repair request can name all of them.
func (v *Validator) Validate(raw []byte) (*model.CandidateResult, []string) {
	parsed, err := parse(raw)
	if err != nil {
		return nil, []string{fmt.Sprintf("payload is not valid JSON: %v", err)}
	}

	var violations []string

	if parsed.Overall == nil {
		violations = append(violations, "missing required field: overall")
	} else if !model.OnBandGrid(*parsed.Overall) {
		violations = append(violations, fmt.Sprintf("overall band %v is not on the %v-step grid in [%v, %v]",
			*parsed.Overall, model.BandStep, model.BandMin, model.BandMax))
	}

	if len(parsed.PerCriterion) == 0 {
		violations = append(violations, "missing required field: per_criterion")
	}

	seen := make(map[string]bool)
	for i, rc := range parsed.PerCriterion {
		where := fmt.Sprintf("per_criterion[%d]", i)

		if rc.Name == nil {
			violations = append(violations, where+": missing required field: name")
			continue
		}
		name := *rc.Name
		if !v.criteria[name] {
			violations = append(violations, fmt.Sprintf("%s: unknown criterion %q", where, name))
			continue
		}
		if seen[name] {
			violations = append(violations, fmt.Sprintf("%s: duplicate criterion %q", where, name))
			continue
		}
		seen[name] = true

		if rc.Band == nil {
			violations = append(violations, fmt.Sprintf("%s (%s): missing required field: band", where, name))
		} else if !model.OnBandGrid(*rc.Band) {
			violations = append(violations, fmt.Sprintf("%s (%s): band %v is not on the %v-step grid in [%v, %v]",
				where, name, *rc.Band, model.BandStep, model.BandMin, model.BandMax))
		}

		if len(rc.EvidenceQuotes) > v.caps.MaxEvidenceQuotes {
			violations = append(violations, fmt.Sprintf("%s (%s): %d evidence quotes exceeds the cap of %d",
				where, name, len(rc.EvidenceQuotes), v.caps.MaxEvidenceQuotes))
		}
		if len(rc.Errors) > v.caps.MaxErrors {
			violations = append(violations, fmt.Sprintf("%s (%s): %d error records exceeds the cap of %d",
				where, name, len(rc.Errors), v.caps.MaxErrors))
		}
		if len(rc.Suggestions) > v.caps.MaxSuggestions {
			violations = append(violations, fmt.Sprintf("%s (%s): %d suggestions exceeds the cap of %d",
				where, name, len(rc.Suggestions), v.caps.MaxSuggestions))
		}

		for j, e := range rc.Errors {
			if e.Span == nil || e.Type == nil || e.Fix == nil {
				violations = append(violations, fmt.Sprintf("%s (%s): errors[%d] must have span, type and fix", where, name, j))
				continue
			}
			if !model.ErrorCategory(*e.Type).Valid() {
				violations = append(violations, fmt.Sprintf("%s (%s): errors[%d] has unknown type %q (allowed: grammar, lexical, coherence, task, other)",
					where, name, j, *e.Type))
			}
		}

		for j, s := range rc.Suggestions {
			// The cap counts characters, not bytes.
			if n := utf8.RuneCountInString(s); n > v.caps.MaxSuggestionChars {
				violations = append(violations, fmt.Sprintf("%s (%s): suggestions[%d] is %d chars, max is %d",
					where, name, j, n, v.caps.MaxSuggestionChars))
			}
		}
	}

	for _, name := range v.order {
		if !seen[name] && len(parsed.PerCriterion) > 0 {
			violations = append(violations, fmt.Sprintf("missing criterion %q in per_criterion", name))
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}

	return toCandidate(parsed), nil
}

// parse decodes the payload, attempting a mechanical JSON repair first if the
// payload is syntactically broken (truncated, fenced, trailing commas).
func parse(raw []byte) (*rawResult, error) {
	var parsed rawResult
	if err := json.Unmarshal(raw, &parsed); err == nil {
		return &parsed, nil
	}

	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unparseable payload: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func toCandidate(parsed *rawResult) *model.CandidateResult {
	out := &model.CandidateResult{
		PerCriterion: make([]model.CandidateCriterion, 0, len(parsed.PerCriterion)),
		Overall:      *parsed.Overall,
	}
	for _, rc := range parsed.PerCriterion {
		cc := model.CandidateCriterion{
			Name:           *rc.Name,
			Band:           *rc.Band,
			EvidenceQuotes: rc.EvidenceQuotes,
			Suggestions:    rc.Suggestions,
		}
		for _, e := range rc.Errors {
			cc.Errors = append(cc.Errors, model.ErrorRecord{
				Span: *e.Span,
				Type: model.ErrorCategory(*e.Type),
				Fix:  *e.Fix,
			})
		}
		out.PerCriterion = append(out.PerCriterion, cc)
	}
	return out
}
