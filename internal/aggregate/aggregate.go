// Package aggregate reduces N validated grading passes to a single result.
// Median is used over mean so one outlier pass cannot swamp the score, and
// dispersion is max minus min so a single wide disagreement stays visible
// even with N as small as 3.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pkarpov/bandmark/internal/model"
)

// ErrInsufficientPasses is returned when fewer valid passes remain than the
// configured quorum. The request fails hard; a degraded score is never
// returned silently.
var ErrInsufficientPasses = errors.New("insufficient valid passes")

// Options controls the reduction.
type Options struct {
	Quorum              int
	DispersionThreshold float64
	MaxEvidenceQuotes   int
	MaxErrors           int
	MaxSuggestions      int
}

// OptionsFromConfig derives aggregation options from the scoring config.
func OptionsFromConfig(cfg model.ScoringConfig) Options {
	return Options{
		Quorum:              cfg.Quorum,
		DispersionThreshold: cfg.DispersionThreshold,
		MaxEvidenceQuotes:   cfg.MaxEvidenceQuotes,
		MaxErrors:           cfg.MaxErrors,
		MaxSuggestions:      cfg.MaxSuggestions,
	}
}

// Median returns the median of values; for even counts it averages the two
// middle values. values must be non-empty.
func Median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2.0
}

// Aggregate reduces validated passes to a single AggregatedResult. It is a
// pure function of its inputs: re-aggregating the same passes yields an
// identical result.
func Aggregate(passes []model.ValidatedResult, opts Options) (*model.AggregatedResult, error) {
	quorum := opts.Quorum
	if quorum < 1 {
		quorum = 1
	}
	if len(passes) < quorum {
		return nil, fmt.Errorf("%w: %d valid of %d required", ErrInsufficientPasses, len(passes), quorum)
	}

	votes := make([]float64, len(passes))
	dropped := 0
	for i, p := range passes {
		votes[i] = p.Overall
		dropped += p.DroppedEvidence
	}

	dispersion := maxOf(votes) - minOf(votes)
	confidence := model.ConfidenceHigh
	if dispersion > opts.DispersionThreshold {
		confidence = model.ConfidenceLow
	}

	return &model.AggregatedResult{
		PerCriterion:    mergeCriteria(passes, opts),
		Overall:         model.RoundToBand(Median(votes)),
		Votes:           votes,
		Dispersion:      dispersion,
		Confidence:      confidence,
		DroppedEvidence: dropped,
	}, nil
}

// mergeCriteria computes the median band per criterion and merges evidence,
// errors and suggestions across passes: first-seen order, deduplicated, then
// capped. Criterion order follows the first pass.
func mergeCriteria(passes []model.ValidatedResult, opts Options) []model.CriterionScore {
	first := passes[0]
	out := make([]model.CriterionScore, 0, len(first.PerCriterion))

	for _, fc := range first.PerCriterion {
		bands := make([]float64, 0, len(passes))
		var quotes []model.Quote
		var errRecords []model.ErrorRecord
		var suggestions []string
		seenQuote := make(map[string]bool)
		seenError := make(map[string]bool)
		seenSuggestion := make(map[string]bool)

		for _, p := range passes {
			for _, pc := range p.PerCriterion {
				if pc.Name != fc.Name {
					continue
				}
				bands = append(bands, pc.Band)
				for _, q := range pc.EvidenceQuotes {
					if !seenQuote[q.Text] {
						seenQuote[q.Text] = true
						quotes = append(quotes, q)
					}
				}
				for _, e := range pc.Errors {
					key := e.Span + "\x00" + string(e.Type)
					if !seenError[key] {
						seenError[key] = true
						errRecords = append(errRecords, e)
					}
				}
				for _, s := range pc.Suggestions {
					if !seenSuggestion[s] {
						seenSuggestion[s] = true
						suggestions = append(suggestions, s)
					}
				}
			}
		}

		out = append(out, model.CriterionScore{
			Name:           fc.Name,
			Band:           model.RoundToBand(Median(bands)),
			EvidenceQuotes: capQuotes(quotes, opts.MaxEvidenceQuotes),
			Errors:         capErrors(errRecords, opts.MaxErrors),
			Suggestions:    capStrings(suggestions, opts.MaxSuggestions),
		})
	}

	return out
}

func capQuotes(qs []model.Quote, n int) []model.Quote {
	if n > 0 && len(qs) > n {
		return qs[:n]
	}
	return qs
}

func capErrors(es []model.ErrorRecord, n int) []model.ErrorRecord {
	if n > 0 && len(es) > n {
		return es[:n]
	}
	return es
}

func capStrings(ss []string, n int) []string {
	if n > 0 && len(ss) > n {
		return ss[:n]
	}
	return ss
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
