package calibrate

import (
	"fmt"
	"math"
	"time"

	"github.com/pkarpov/bandmark/internal/metrics"
	"github.com/pkarpov/bandmark/internal/model"
)

// FitOptions configures the training objective.
type FitOptions struct {
	Tolerance       float64
	AgreementWeight float64
	CoverageWeight  float64
}

// DefaultFitOptions mirrors the production defaults: 0.5-band tolerance,
// agreement weighted 0.8 against 0.2 coverage.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Tolerance:       0.5,
		AgreementWeight: 0.8,
		CoverageWeight:  0.2,
	}
}

// Fit learns an affine map y = a*x + b from raw predictions to ground truth.
//
// The objective is non-smooth: membership in the in-tolerance subset changes
// discontinuously as (a, b) move, so a derivative-free Nelder-Mead search is
// restarted from a grid of seed points and the best optimum wins. Candidates
// with a negative slope are rejected outright to keep the map monotone.
func Fit(raw, truth []float64, opts FitOptions) (*Model, error) {
	if len(raw) != len(truth) {
		return nil, fmt.Errorf("length mismatch: %d raw vs %d truth", len(raw), len(truth))
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("need at least 2 training pairs, got %d", len(raw))
	}

	objective := func(a, b float64) float64 {
		return fitObjective(raw, truth, a, b, opts)
	}

	bestA, bestB := 1.0, 0.0
	bestScore := objective(bestA, bestB)

	for _, a0 := range []float64{0.5, 1.0, 1.5, 2.0} {
		for _, b0 := range []float64{-3.0, -2.0, -1.0, 0.0, 1.0, 2.0} {
			a, b, score := nelderMead(objective, a0, b0)
			if score > bestScore {
				bestA, bestB, bestScore = a, b, score
			}
		}
	}

	now := time.Now().UTC()
	return &Model{
		Version:         fmt.Sprintf("qwk-affine-%s", now.Format("20060102T150405Z")),
		Slope:           bestA,
		Intercept:       bestB,
		Tolerance:       opts.Tolerance,
		AgreementWeight: opts.AgreementWeight,
		CoverageWeight:  opts.CoverageWeight,
		TrainingSamples: len(raw),
		Objective:       bestScore,
		FittedAt:        now,
	}, nil
}

// fitObjective scores a candidate (a, b): quadratic-weighted agreement on the
// subset of pairs that land within tolerance after the transform, blended
// with the fraction of pairs in tolerance at all.
func fitObjective(raw, truth []float64, a, b float64, opts FitOptions) float64 {
	if a < 0 {
		return math.Inf(-1)
	}

	var withinTruth, withinPred []float64
	within := 0
	for i := range raw {
		pred := model.ClampBand(a*raw[i] + b)
		if math.Abs(pred-truth[i]) <= opts.Tolerance {
			within++
			withinTruth = append(withinTruth, truth[i])
			withinPred = append(withinPred, pred)
		}
	}

	coverage := float64(within) / float64(len(raw))
	agreement := 0.0
	if within > 0 {
		agreement = metrics.QuadraticWeightedKappa(withinTruth, withinPred)
	}

	return opts.AgreementWeight*agreement + opts.CoverageWeight*coverage
}

// nelderMead maximizes f over two parameters starting from (a0, b0). A small
// fixed-shape implementation is enough here: the surface is cheap to evaluate
// and the restarts handle local optima.
func nelderMead(f func(a, b float64) float64, a0, b0 float64) (float64, float64, float64) {
	const (
		maxIter = 300
		alpha   = 1.0 // reflection
		gamma   = 2.0 // expansion
		rho     = 0.5 // contraction
		sigma   = 0.5 // shrink
		xatol   = 1e-6
	)

	type vertex struct {
		a, b  float64
		score float64
	}

	simplex := []vertex{
		{a0, b0, f(a0, b0)},
		{a0 + 0.25, b0, f(a0+0.25, b0)},
		{a0, b0 + 0.25, f(a0, b0+0.25)},
	}

	for iter := 0; iter < maxIter; iter++ {
		// Order best to worst.
		for i := 0; i < len(simplex); i++ {
			for j := i + 1; j < len(simplex); j++ {
				if simplex[j].score > simplex[i].score {
					simplex[i], simplex[j] = simplex[j], simplex[i]
				}
			}
		}
		best, mid, worst := simplex[0], simplex[1], simplex[2]

		if math.Abs(best.a-worst.a) < xatol && math.Abs(best.b-worst.b) < xatol {
			break
		}

		// Centroid of the two best vertices.
		ca := (best.a + mid.a) / 2
		cb := (best.b + mid.b) / 2

		// Reflect the worst vertex through the centroid.
		ra := ca + alpha*(ca-worst.a)
		rb := cb + alpha*(cb-worst.b)
		rScore := f(ra, rb)

		switch {
		case rScore > best.score:
			// Try expanding further in the same direction.
			ea := ca + gamma*(ca-worst.a)
			eb := cb + gamma*(cb-worst.b)
			if eScore := f(ea, eb); eScore > rScore {
				simplex[2] = vertex{ea, eb, eScore}
			} else {
				simplex[2] = vertex{ra, rb, rScore}
			}
		case rScore > mid.score:
			simplex[2] = vertex{ra, rb, rScore}
		default:
			// Contract toward the centroid.
			xa := ca + rho*(worst.a-ca)
			xb := cb + rho*(worst.b-cb)
			if xScore := f(xa, xb); xScore > worst.score {
				simplex[2] = vertex{xa, xb, xScore}
			} else {
				// Shrink everything toward the best vertex.
				for i := 1; i < len(simplex); i++ {
					sa := best.a + sigma*(simplex[i].a-best.a)
					sb := best.b + sigma*(simplex[i].b-best.b)
					simplex[i] = vertex{sa, sb, f(sa, sb)}
				}
			}
		}
	}

	best := simplex[0]
	for _, v := range simplex[1:] {
		if v.score > best.score {
			best = v
		}
	}
	return best.a, best.b, best.score
}
