// Package pipeline orchestrates multi-pass essay adjudication: N independent
// grading passes, schema and span validation per pass, median aggregation,
// then optional calibration of the overall band. Passes share nothing and
// never see each other's output.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pkarpov/bandmark/internal/aggregate"
	"github.com/pkarpov/bandmark/internal/cache"
	"github.com/pkarpov/bandmark/internal/calibrate"
	"github.com/pkarpov/bandmark/internal/llm"
	"github.com/pkarpov/bandmark/internal/model"
	"github.com/pkarpov/bandmark/internal/schema"
	"github.com/pkarpov/bandmark/internal/span"
	"github.com/pkarpov/bandmark/internal/worker"
)

// Pipeline orchestrates the complete scoring process
type Pipeline struct {
	grader    llm.Provider
	validator *schema.Validator
	spans     *span.Checker
	calib     *calibrate.Model
	cache     cache.Cache
	limiter   *worker.Limiter
	log       *zap.Logger
	config    *model.Config
}

// New creates a pipeline from configuration, building the grading provider
// and loading the newest calibration artifact when one is available.
func New(cfg *model.Config, log *zap.Logger) (*Pipeline, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Grader, cfg.Scoring))
	if err != nil {
		return nil, fmt.Errorf("create grading provider: %w", err)
	}
	return NewWithProvider(cfg, log, provider)
}

// NewWithProvider creates a pipeline around an existing grading provider.
func NewWithProvider(cfg *model.Config, log *zap.Logger, provider llm.Provider) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var calib *calibrate.Model
	if !cfg.Calibration.Disabled {
		var err error
		switch {
		case cfg.Calibration.ModelPath != "":
			calib, err = calibrate.Load(cfg.Calibration.ModelPath)
			if err != nil {
				return nil, fmt.Errorf("load calibration model: %w", err)
			}
		case cfg.Calibration.Dir != "":
			calib, err = calibrate.LoadLatest(cfg.Calibration.Dir)
			if errors.Is(err, calibrate.ErrUnavailable) {
				log.Info("no calibration artifact found, scoring uncalibrated",
					zap.String("dir", cfg.Calibration.Dir))
				calib = nil
			} else if err != nil {
				return nil, fmt.Errorf("load calibration model: %w", err)
			}
		}
	}
	if calib != nil {
		log.Info("calibration model loaded",
			zap.String("version", calib.Version),
			zap.Float64("slope", calib.Slope),
			zap.Float64("intercept", calib.Intercept))
	}

	var resultCache cache.Cache
	if cfg.Cache.Enabled {
		resultCache = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.TTL)
	}

	var limiter *worker.Limiter
	if cfg.Grader.RequestsPerSecond > 0 {
		limiter = worker.NewLimiter(cfg.Grader.RequestsPerSecond, cfg.Grader.Burst)
	}

	return &Pipeline{
		grader:    provider,
		validator: schema.NewValidator(cfg.Scoring),
		spans:     span.NewChecker(),
		calib:     calib,
		cache:     resultCache,
		limiter:   limiter,
		log:       log,
		config:    cfg,
	}, nil
}

// Score runs the full adjudication for one essay: N concurrent passes,
// aggregation, calibration, grid rounding.
func (p *Pipeline) Score(ctx context.Context, req model.ScoringRequest) (*model.FinalResult, error) {
	if req.Essay == "" {
		return nil, fmt.Errorf("empty essay")
	}

	started := time.Now()

	var cacheKey string
	if p.cache != nil {
		cacheKey = cache.CacheKey(req.TaskType, req.Question, req.Essay, p.config.Grader.Model)
		if data, found := p.cache.Get(cacheKey); found {
			var cached model.FinalResult
			if err := json.Unmarshal(data, &cached); err == nil {
				p.log.Debug("cache hit", zap.String("key", cacheKey))
				return &cached, nil
			}
			// Corrupt entry: drop it and score from scratch
			_ = p.cache.Delete(cacheKey)
		}
	}

	outcomes := p.runPasses(ctx, req)

	var (
		validated    []model.ValidatedResult
		inputTokens  int
		outputTokens int
		graderModel  string
	)
	for _, out := range outcomes {
		inputTokens += out.inputTokens
		outputTokens += out.outputTokens
		if out.model != "" {
			graderModel = out.model
		}
		if out.state == passValidated {
			validated = append(validated, *out.result)
		} else if out.err != nil {
			p.log.Warn("grading pass rejected", zap.Int("pass", out.index), zap.Error(out.err))
		}
	}
	if graderModel == "" {
		graderModel = p.config.Grader.Model
	}

	agg, err := aggregate.Aggregate(validated, aggregate.OptionsFromConfig(p.config.Scoring))
	if err != nil {
		return nil, fmt.Errorf("aggregate %d of %d passes: %w", len(validated), p.config.Scoring.Passes, err)
	}

	calibrated := agg.Overall
	version := model.CalibrationNone
	if p.calib != nil {
		calibrated = p.calib.Apply(agg.Overall)
		version = p.calib.Version
	}

	final := &model.FinalResult{
		PerCriterion: agg.PerCriterion,
		Overall:      model.RoundToBand(calibrated),
		Votes:        agg.Votes,
		Dispersion:   agg.Dispersion,
		Confidence:   agg.Confidence,
		Meta: model.ResultMeta{
			Model:              graderModel,
			CalibrationVersion: version,
			RawOverall:         agg.Overall,
			DroppedEvidence:    agg.DroppedEvidence,
			ValidPasses:        len(validated),
			InputTokens:        inputTokens,
			OutputTokens:       outputTokens,
			ScoringSeconds:     time.Since(started).Seconds(),
		},
	}

	p.log.Info("essay scored",
		zap.Float64("overall", final.Overall),
		zap.Float64("raw_overall", agg.Overall),
		zap.Float64("dispersion", agg.Dispersion),
		zap.String("confidence", agg.Confidence),
		zap.Int("valid_passes", len(validated)),
		zap.Int("dropped_evidence", agg.DroppedEvidence),
		zap.String("calibration", version))

	if p.cache != nil {
		if data, err := json.Marshal(final); err == nil {
			_ = p.cache.Set(cacheKey, data, p.config.Cache.TTL)
		}
	}

	return final, nil
}

// runPasses launches the configured number of grading passes, bounded by the
// pass worker limit. Pass order in the result is stable.
func (p *Pipeline) runPasses(ctx context.Context, req model.ScoringRequest) []passOutcome {
	passes := p.config.Scoring.Passes
	if passes <= 0 {
		passes = 1
	}
	workers := p.config.Concurrency.PassWorkers
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]passOutcome, passes)
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, workers)

	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				outcomes[idx] = passOutcome{index: idx, state: passRejected, err: ctx.Err()}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			outcomes[idx] = p.runPass(ctx, req, idx)
		}(i)
	}

	wg.Wait()
	return outcomes
}
