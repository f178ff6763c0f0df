package model

// ScoringRequest is one incoming scoring call. It is created by the caller
// and never mutated after creation.
type ScoringRequest struct {
	TaskType string `json:"task_type"`
	Question string `json:"question,omitempty"`
	Essay    string `json:"essay"`
}

// ErrorRecord is a single error the grader found in the essay.
type ErrorRecord struct {
	Span string        `json:"span"`
	Type ErrorCategory `json:"type"`
	Fix  string        `json:"fix"`
}

// CandidateCriterion is one criterion assessment from a single grading pass,
// after the strict schema parse but before span checking.
type CandidateCriterion struct {
	Name           string        `json:"name"`
	Band           float64       `json:"band"`
	EvidenceQuotes []string      `json:"evidence_quotes"`
	Errors         []ErrorRecord `json:"errors"`
	Suggestions    []string      `json:"suggestions"`
}

// CandidateResult is the raw output of one grading pass. It is untrusted
// until it has passed schema and span validation, and is discarded after
// aggregation.
type CandidateResult struct {
	PerCriterion []CandidateCriterion `json:"per_criterion"`
	Overall      float64              `json:"overall"`
}

// Quote is an evidence quote that survived span checking. Start/End are byte
// offsets into the original (un-normalized) essay for exact matches; they are
// -1 for approximate matches.
type Quote struct {
	Text        string `json:"text"`
	Approximate bool   `json:"approximate,omitempty"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// ValidatedCriterion is a criterion assessment whose quotes and error spans
// are all demonstrably grounded in the essay.
type ValidatedCriterion struct {
	Name           string        `json:"name"`
	Band           float64       `json:"band"`
	EvidenceQuotes []Quote       `json:"evidence_quotes"`
	Errors         []ErrorRecord `json:"errors"`
	Suggestions    []string      `json:"suggestions"`
}

// ValidatedResult is one grading pass after schema and span validation.
// DroppedEvidence counts quote and error entries removed because they could
// not be found in the essay.
type ValidatedResult struct {
	PerCriterion    []ValidatedCriterion `json:"per_criterion"`
	Overall         float64              `json:"overall"`
	DroppedEvidence int                  `json:"dropped_evidence"`
}

// Confidence labels derived from vote dispersion.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// CriterionScore is the aggregated assessment for one criterion.
type CriterionScore struct {
	Name           string        `json:"name"`
	Band           float64       `json:"band"`
	EvidenceQuotes []Quote       `json:"evidence_quotes"`
	Errors         []ErrorRecord `json:"errors"`
	Suggestions    []string      `json:"suggestions"`
}

// AggregatedResult is the reduction of N validated passes. Overall is the
// pre-calibration median on the band grid. Immutable once produced.
type AggregatedResult struct {
	PerCriterion    []CriterionScore `json:"per_criterion"`
	Overall         float64          `json:"overall"`
	Votes           []float64        `json:"votes"`
	Dispersion      float64          `json:"dispersion"`
	Confidence      string           `json:"confidence"`
	DroppedEvidence int              `json:"dropped_evidence"`
}

// ResultMeta carries enough provenance for a caller to judge trust in the
// score without internal logs.
type ResultMeta struct {
	Model              string  `json:"model"`
	CalibrationVersion string  `json:"calibration_version"`
	RawOverall         float64 `json:"raw_overall"`
	DroppedEvidence    int     `json:"dropped_evidence"`
	ValidPasses        int     `json:"valid_passes"`
	InputTokens        int     `json:"input_tokens"`
	OutputTokens       int     `json:"output_tokens"`
	ScoringSeconds     float64 `json:"scoring_seconds"`
}

// CalibrationNone is the calibration version recorded when no model was applied.
const CalibrationNone = "none"

// FinalResult is the only entity returned to external callers. Overall is
// calibrated (when a calibration model is attached) and rounded to the grid.
type FinalResult struct {
	PerCriterion []CriterionScore `json:"per_criterion"`
	Overall      float64          `json:"overall"`
	Votes        []float64        `json:"votes"`
	Dispersion   float64          `json:"dispersion"`
	Confidence   string           `json:"confidence"`
	Meta         ResultMeta       `json:"meta"`
}
