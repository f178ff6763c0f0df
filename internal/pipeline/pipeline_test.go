package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkarpov/bandmark/internal/aggregate"
	"github.com/pkarpov/bandmark/internal/calibrate"
	"github.com/pkarpov/bandmark/internal/llm"
	"github.com/pkarpov/bandmark/internal/model"
)

const testEssay = "The government should invest in public transport. Cities grow faster than roads."

// mockProvider returns scripted responses keyed by call number (1-based).
type mockProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) Score(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.respond(call, req)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// validPayload builds a schema-conforming response with the given overall
// band and a quote taken verbatim from testEssay.
func validPayload(overall float64) string {
	criteria := ""
	for _, name := range model.DefaultCriteria() {
		criteria += fmt.Sprintf(`{"name":%q,"band":%g,"evidence_quotes":["The government should invest"],"errors":[{"span":"Cities grow","type":"grammar","fix":"Cities are growing"}],"suggestions":["Develop the second argument further."]},`, name, overall)
	}
	criteria = criteria[:len(criteria)-1]
	return fmt.Sprintf(`{"per_criterion":[%s],"overall":%g}`, criteria, overall)
}

func respOK(payload string) *llm.ScoreResponse {
	return &llm.ScoreResponse{
		Raw:          []byte(payload),
		Model:        "mock-model",
		InputTokens:  100,
		OutputTokens: 40,
	}
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Grader.Model = "mock-model"
	cfg.Grader.RequestsPerSecond = 0 // no limiter in tests
	cfg.Cache.Enabled = false
	cfg.Calibration.Disabled = true
	cfg.Concurrency.PassWorkers = 2
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config, provider llm.Provider) *Pipeline {
	t.Helper()
	p, err := NewWithProvider(cfg, nil, provider)
	if err != nil {
		t.Fatalf("NewWithProvider failed: %v", err)
	}
	return p
}

func TestScore_HappyPath(t *testing.T) {
	// Three valid passes voting 6.0, 6.5, 6.0: median 6.0, dispersion 0.5,
	// confidence high at the default threshold.
	bands := []float64{6.0, 6.5, 6.0}
	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			return respOK(validPayload(bands[(call-1)%len(bands)])), nil
		},
	}

	p := newTestPipeline(t, testConfig(), provider)

	result, err := p.Score(context.Background(), model.ScoringRequest{TaskType: "task2", Essay: testEssay})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Overall != 6.0 {
		t.Errorf("overall = %v, want 6.0", result.Overall)
	}
	if len(result.Votes) != 3 {
		t.Errorf("votes = %v, want 3 entries", result.Votes)
	}
	if result.Dispersion != 0.5 {
		t.Errorf("dispersion = %v, want 0.5", result.Dispersion)
	}
	if result.Confidence != model.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", result.Confidence)
	}
	if result.Meta.ValidPasses != 3 {
		t.Errorf("valid passes = %d, want 3", result.Meta.ValidPasses)
	}
	if result.Meta.CalibrationVersion != model.CalibrationNone {
		t.Errorf("calibration version = %s, want none", result.Meta.CalibrationVersion)
	}
	if result.Meta.Model != "mock-model" {
		t.Errorf("model = %s, want mock-model", result.Meta.Model)
	}
	if result.Meta.InputTokens != 300 || result.Meta.OutputTokens != 120 {
		t.Errorf("tokens = %d/%d, want 300/120", result.Meta.InputTokens, result.Meta.OutputTokens)
	}
	if len(result.PerCriterion) != len(model.DefaultCriteria()) {
		t.Errorf("got %d criteria, want %d", len(result.PerCriterion), len(model.DefaultCriteria()))
	}
}

func TestScore_RepairSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.Passes = 1

	var sawRepairHint bool
	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			if call == 1 {
				// Off-grid overall fails schema validation
				return respOK(`{"per_criterion":[],"overall":6.3}`), nil
			}
			if len(req.RepairHint) > 0 {
				sawRepairHint = true
			}
			return respOK(validPayload(6.5)), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	result, err := p.Score(context.Background(), model.ScoringRequest{Essay: testEssay})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if !sawRepairHint {
		t.Error("repair call must carry the violations")
	}
	if provider.callCount() != 2 {
		t.Errorf("made %d calls, want 2 (original + one repair)", provider.callCount())
	}
	if result.Overall != 6.5 {
		t.Errorf("overall = %v, want 6.5", result.Overall)
	}
	if result.Meta.InputTokens != 200 {
		t.Errorf("input tokens = %d, want 200 (both calls counted)", result.Meta.InputTokens)
	}
}

func TestScore_AllPassesInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.Passes = 2
	cfg.Scoring.MaxRetries = 1

	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			return respOK(`{"per_criterion":[],"overall":6.3}`), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	_, err := p.Score(context.Background(), model.ScoringRequest{Essay: testEssay})
	if !errors.Is(err, aggregate.ErrInsufficientPasses) {
		t.Errorf("expected ErrInsufficientPasses, got %v", err)
	}
	// Each pass gets exactly one repair attempt: 2 passes * 2 calls.
	if provider.callCount() != 4 {
		t.Errorf("made %d calls, want 4", provider.callCount())
	}
}

func TestScore_TransportRetry(t *testing.T) {
	oldSleep := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = oldSleep }()

	cfg := testConfig()
	cfg.Scoring.Passes = 1

	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			if call < 3 {
				return nil, errors.New("connection reset")
			}
			return respOK(validPayload(7.0)), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	result, err := p.Score(context.Background(), model.ScoringRequest{Essay: testEssay})
	if err != nil {
		t.Fatalf("Score failed after retries: %v", err)
	}
	if result.Overall != 7.0 {
		t.Errorf("overall = %v, want 7.0", result.Overall)
	}
	if provider.callCount() != 3 {
		t.Errorf("made %d calls, want 3", provider.callCount())
	}
}

func TestScore_DropsUngroundedEvidence(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.Passes = 1

	// One quote exists in the essay, one is fabricated.
	payload := `{"per_criterion":[
		{"name":"task_response","band":6.0,"evidence_quotes":["The government should invest","cats are mammals"],"errors":[],"suggestions":[]},
		{"name":"coherence_cohesion","band":6.0,"evidence_quotes":[],"errors":[],"suggestions":[]},
		{"name":"lexical_resource","band":6.0,"evidence_quotes":[],"errors":[],"suggestions":[]},
		{"name":"grammatical_range","band":6.0,"evidence_quotes":[],"errors":[],"suggestions":[]}
	],"overall":6.0}`

	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			return respOK(payload), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	result, err := p.Score(context.Background(), model.ScoringRequest{Essay: testEssay})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Meta.DroppedEvidence != 1 {
		t.Errorf("dropped evidence = %d, want 1", result.Meta.DroppedEvidence)
	}
	if len(result.PerCriterion[0].EvidenceQuotes) != 1 {
		t.Fatalf("kept %d quotes, want 1", len(result.PerCriterion[0].EvidenceQuotes))
	}
	kept := result.PerCriterion[0].EvidenceQuotes[0]
	if kept.Text != "The government should invest" || kept.Approximate {
		t.Errorf("unexpected kept quote: %+v", kept)
	}
	if kept.Start < 0 || kept.End <= kept.Start {
		t.Errorf("exact quote must carry offsets, got [%d,%d)", kept.Start, kept.End)
	}
}

func TestScore_AppliesCalibration(t *testing.T) {
	dir := t.TempDir()
	calib := &calibrate.Model{
		Version:   "qwk-affine-test",
		Slope:     1.0,
		Intercept: 1.0,
		FittedAt:  time.Now().UTC(),
	}
	if _, err := calibrate.Save(calib, dir); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Scoring.Passes = 1
	cfg.Calibration.Disabled = false
	cfg.Calibration.Dir = dir

	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			return respOK(validPayload(6.0)), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	result, err := p.Score(context.Background(), model.ScoringRequest{Essay: testEssay})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Overall != 7.0 {
		t.Errorf("calibrated overall = %v, want 7.0", result.Overall)
	}
	if result.Meta.RawOverall != 6.0 {
		t.Errorf("raw overall = %v, want 6.0", result.Meta.RawOverall)
	}
	if result.Meta.CalibrationVersion != "qwk-affine-test" {
		t.Errorf("calibration version = %s, want qwk-affine-test", result.Meta.CalibrationVersion)
	}
	// Per-criterion bands are never calibrated.
	for _, c := range result.PerCriterion {
		if c.Band != 6.0 {
			t.Errorf("criterion %s band = %v, want uncalibrated 6.0", c.Name, c.Band)
		}
	}
}

func TestScore_CacheHit(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.Passes = 1
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Minute

	provider := &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			return respOK(validPayload(6.5)), nil
		},
	}

	p := newTestPipeline(t, cfg, provider)

	req := model.ScoringRequest{TaskType: "task2", Essay: testEssay}
	first, err := p.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("first Score failed: %v", err)
	}
	calls := provider.callCount()

	second, err := p.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("second Score failed: %v", err)
	}
	if provider.callCount() != calls {
		t.Error("cache hit must not call the grader")
	}
	if second.Overall != first.Overall {
		t.Errorf("cached overall = %v, want %v", second.Overall, first.Overall)
	}
}

func TestScore_EmptyEssay(t *testing.T) {
	p := newTestPipeline(t, testConfig(), &mockProvider{
		respond: func(call int, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
			t.Error("grader must not be called for an empty essay")
			return nil, errors.New("unreachable")
		},
	})

	if _, err := p.Score(context.Background(), model.ScoringRequest{}); err == nil {
		t.Error("expected error for empty essay")
	}
}
