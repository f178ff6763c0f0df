// Package span verifies that quoted text is actually present in the source
// essay. Every quote that survives validation is demonstrably grounded:
// either a verbatim (normalized) substring, or a token-level fuzzy match that
// is accepted but flagged approximate.
package span

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Verdict is the outcome of checking one quote against the source.
type Verdict int

const (
	NotFound Verdict = iota
	Exact
	Approximate
)

func (v Verdict) String() string {
	switch v {
	case Exact:
		return "exact"
	case Approximate:
		return "approximate"
	default:
		return "not_found"
	}
}

// Match describes where and how a quote was found. Start/End are byte
// offsets into the original, un-normalized source text for Exact matches;
// both are -1 otherwise.
type Match struct {
	Verdict Verdict
	Start   int
	End     int
}

// Checker performs grounding checks. Safe for concurrent use: the case
// folder is stateful, so one is created per normalization.
type Checker struct {
	// minTokenRatio is the fraction of quote tokens that must match a
	// source token window for an Approximate verdict.
	minTokenRatio float64
}

// NewChecker creates a checker with default fuzzy-matching settings.
func NewChecker() *Checker {
	return &Checker{
		minTokenRatio: 0.8,
	}
}

// Check looks for quote in source. Normalization (NFKC, case folding,
// whitespace collapse) is applied identically to both sides before
// comparison.
func (c *Checker) Check(source, quote string) Match {
	normSource, offsets := c.normalize(source)
	normQuote, _ := c.normalize(quote)

	if normQuote == "" {
		return Match{Verdict: NotFound, Start: -1, End: -1}
	}

	if idx := strings.Index(normSource, normQuote); idx >= 0 {
		return Match{
			Verdict: Exact,
			Start:   offsets[idx].start,
			End:     offsets[idx+len(normQuote)-1].end,
		}
	}

	if c.fuzzyContains(normSource, normQuote) {
		return Match{Verdict: Approximate, Start: -1, End: -1}
	}

	return Match{Verdict: NotFound, Start: -1, End: -1}
}

// byteSpan maps one normalized byte back to the source segment it came from.
type byteSpan struct {
	start int // byte offset of the source segment
	end   int // byte offset just past the source segment
}

// normalize applies NFKC normalization, case folding and whitespace collapse.
// NFKC runs over whole normalization segments, not individual runes, so
// decomposed sequences (e + U+0301) compose to the same form as their
// precomposed equivalents (é). The returned offsets slice has one entry per
// normalized byte, pointing at the original segment that produced it, so exact
// matches can report audit offsets in the un-normalized text.
func (c *Checker) normalize(s string) (string, []byteSpan) {
	var b strings.Builder
	offsets := make([]byteSpan, 0, len(s))
	fold := cases.Fold()
	pendingSpace := false
	emitted := false

	var it norm.Iter
	it.InitString(norm.NFKC, s)
	segStart := 0
	for !it.Done() {
		seg := it.Next()
		segEnd := it.Pos()

		for _, r := range string(seg) {
			if unicode.IsSpace(r) {
				pendingSpace = emitted
				continue
			}

			folded := fold.String(string(r))
			if folded == "" {
				continue
			}

			if pendingSpace {
				b.WriteByte(' ')
				offsets = append(offsets, byteSpan{start: segStart, end: segStart})
				pendingSpace = false
			}

			b.WriteString(folded)
			for k := 0; k < len(folded); k++ {
				offsets = append(offsets, byteSpan{start: segStart, end: segEnd})
			}
			emitted = true
		}

		segStart = segEnd
	}

	return b.String(), offsets
}

// fuzzyContains reports whether all tokens of the quote appear as a
// contiguous token run in the source, allowing minor drift: punctuation is
// stripped from tokens, and a single-character edit is tolerated on tokens of
// four or more characters.
func (c *Checker) fuzzyContains(normSource, normQuote string) bool {
	sourceTokens := tokenize(normSource)
	quoteTokens := tokenize(normQuote)

	// Single-token quotes must match exactly; fuzziness on one word is
	// indistinguishable from a different word.
	if len(quoteTokens) < 2 || len(sourceTokens) < len(quoteTokens) {
		return false
	}

	for start := 0; start+len(quoteTokens) <= len(sourceTokens); start++ {
		matched := 0
		for j, qt := range quoteTokens {
			if tokensSimilar(sourceTokens[start+j], qt) {
				matched++
			}
		}
		if float64(matched) >= c.minTokenRatio*float64(len(quoteTokens)) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func tokensSimilar(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return editDistance(a, b) <= 1
}

// editDistance is plain Levenshtein; tokens are short so the quadratic cost
// is irrelevant.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
