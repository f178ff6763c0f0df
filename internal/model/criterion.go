package model

// Rubric criterion names. The set is fixed by configuration at process start;
// these are the defaults for Task 2 essays.
const (
	CriterionTaskResponse      = "task_response"
	CriterionCoherenceCohesion = "coherence_cohesion"
	CriterionLexicalResource   = "lexical_resource"
	CriterionGrammaticalRange  = "grammatical_range"
)

// DefaultCriteria returns the standard four rubric criteria in display order.
func DefaultCriteria() []string {
	return []string{
		CriterionTaskResponse,
		CriterionCoherenceCohesion,
		CriterionLexicalResource,
		CriterionGrammaticalRange,
	}
}

// ErrorCategory classifies an error record reported by the grader.
type ErrorCategory string

const (
	ErrorGrammar   ErrorCategory = "grammar"
	ErrorLexical   ErrorCategory = "lexical"
	ErrorCoherence ErrorCategory = "coherence"
	ErrorTask      ErrorCategory = "task"
	ErrorOther     ErrorCategory = "other"
)

// Valid reports whether the category is one of the fixed enumeration.
func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorGrammar, ErrorLexical, ErrorCoherence, ErrorTask, ErrorOther:
		return true
	default:
		return false
	}
}
