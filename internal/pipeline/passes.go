package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pkarpov/bandmark/internal/llm"
	"github.com/pkarpov/bandmark/internal/model"
	"github.com/pkarpov/bandmark/internal/span"
)

// sleepFunc is the sleep function used between transport retries (injectable for tests)
var sleepFunc = time.Sleep

// passState tracks one grading pass through its lifecycle. A pass that fails
// schema validation gets exactly one corrective re-request; a second failure
// rejects the pass for good.
type passState int

const (
	passPending passState = iota
	passAwaitingResult
	passRepairRequested
	passAwaitingRepairResult
	passValidated
	passRejected
)

// passOutcome is the terminal record of one grading pass. Token counts cover
// every call the pass made, including a rejected repair attempt.
type passOutcome struct {
	index        int
	state        passState
	result       *model.ValidatedResult
	model        string
	inputTokens  int
	outputTokens int
	err          error
}

// runPass executes one full grading pass: request, schema validation with at
// most one repair round trip, then span grounding.
func (p *Pipeline) runPass(ctx context.Context, req model.ScoringRequest, idx int) passOutcome {
	out := passOutcome{index: idx, state: passPending}

	scoreReq := llm.ScoreRequest{
		TaskType: req.TaskType,
		Question: req.Question,
		Essay:    req.Essay,
	}

	out.state = passAwaitingResult
	resp, err := p.scoreWithRetry(ctx, scoreReq)
	if err != nil {
		out.state = passRejected
		out.err = fmt.Errorf("grading call: %w", err)
		return out
	}
	out.model = resp.Model
	out.inputTokens += resp.InputTokens
	out.outputTokens += resp.OutputTokens

	candidate, violations := p.validator.Validate(resp.Raw)
	if len(violations) > 0 {
		out.state = passRepairRequested
		p.log.Debug("pass failed schema validation, requesting repair",
			zap.Int("pass", idx),
			zap.Strings("violations", violations))

		scoreReq.RepairHint = violations
		out.state = passAwaitingRepairResult
		resp, err = p.scoreWithRetry(ctx, scoreReq)
		if err != nil {
			out.state = passRejected
			out.err = fmt.Errorf("repair call: %w", err)
			return out
		}
		out.inputTokens += resp.InputTokens
		out.outputTokens += resp.OutputTokens

		candidate, violations = p.validator.Validate(resp.Raw)
		if len(violations) > 0 {
			// The single repair round trip is spent; the pass is out.
			out.state = passRejected
			out.err = fmt.Errorf("schema violations after repair: %v", violations)
			return out
		}
	}

	out.result = p.groundSpans(req.Essay, candidate)
	out.state = passValidated
	return out
}

// scoreWithRetry retries transient grading failures with exponential backoff.
// Context cancellation is terminal and never retried.
func (p *Pipeline) scoreWithRetry(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
	maxRetries := p.config.Scoring.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, p.config.Grader.Model); err != nil {
				return nil, err
			}
		}

		resp, err := p.grader.Score(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			sleepFunc(backoff)
		}
	}
	return nil, lastErr
}

// groundSpans checks every evidence quote and error span against the essay.
// Entries the checker cannot find are dropped and counted; the bands
// themselves are never altered here.
func (p *Pipeline) groundSpans(essay string, candidate *model.CandidateResult) *model.ValidatedResult {
	validated := &model.ValidatedResult{
		PerCriterion: make([]model.ValidatedCriterion, 0, len(candidate.PerCriterion)),
		Overall:      candidate.Overall,
	}

	for _, c := range candidate.PerCriterion {
		vc := model.ValidatedCriterion{
			Name:        c.Name,
			Band:        c.Band,
			Suggestions: c.Suggestions,
		}

		for _, q := range c.EvidenceQuotes {
			m := p.spans.Check(essay, q)
			if m.Verdict == span.NotFound {
				validated.DroppedEvidence++
				p.log.Debug("dropped ungrounded quote",
					zap.String("criterion", c.Name),
					zap.String("quote", q))
				continue
			}
			vc.EvidenceQuotes = append(vc.EvidenceQuotes, model.Quote{
				Text:        q,
				Approximate: m.Verdict == span.Approximate,
				Start:       m.Start,
				End:         m.End,
			})
		}

		for _, e := range c.Errors {
			m := p.spans.Check(essay, e.Span)
			if m.Verdict == span.NotFound {
				validated.DroppedEvidence++
				p.log.Debug("dropped ungrounded error span",
					zap.String("criterion", c.Name),
					zap.String("span", e.Span))
				continue
			}
			vc.Errors = append(vc.Errors, e)
		}

		validated.PerCriterion = append(validated.PerCriterion, vc)
	}

	return validated
}
