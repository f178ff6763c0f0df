// Package metrics computes agreement statistics between predicted and human
// band scores. All functions are pure; they are used both to train and select
// calibration models and to regression-test the scoring pipeline.
package metrics

import (
	"fmt"
	"math"

	"github.com/pkarpov/bandmark/internal/model"
)

// Report is the metrics summary exposed to evaluation tooling.
type Report struct {
	QuadraticWeightedAgreement float64  `json:"quadratic_weighted_agreement"`
	MeanAbsoluteError          float64  `json:"mean_absolute_error"`
	WithinToleranceRate        float64  `json:"within_tolerance_rate"`
	AuxiliaryCorrelation       *float64 `json:"auxiliary_correlation,omitempty"`
	SampleCount                int      `json:"sample_count"`
}

// Compute builds a full report. covariate is optional (nil skips the
// auxiliary correlation); when present it must be parallel to predictions.
func Compute(truth, predictions, covariate []float64, tolerance float64) (*Report, error) {
	if len(truth) != len(predictions) {
		return nil, fmt.Errorf("length mismatch: %d truth vs %d predictions", len(truth), len(predictions))
	}
	if len(truth) == 0 {
		return nil, fmt.Errorf("no samples")
	}

	report := &Report{
		QuadraticWeightedAgreement: QuadraticWeightedKappa(truth, predictions),
		MeanAbsoluteError:          MeanAbsoluteError(truth, predictions),
		WithinToleranceRate:        WithinToleranceRate(truth, predictions, tolerance),
		SampleCount:                len(truth),
	}
	if covariate != nil {
		report.AuxiliaryCorrelation = Pearson(predictions, covariate)
	}
	return report, nil
}

// QuadraticWeightedKappa computes Cohen's kappa with quadratic weights over
// the band grid: larger ordinal disagreements are penalized more heavily.
// Values are rounded onto the grid before binning. Returns 0 when chance
// agreement is degenerate (all mass in one cell).
func QuadraticWeightedKappa(truth, predictions []float64) float64 {
	n := len(truth)
	if n == 0 || n != len(predictions) {
		return 0
	}

	size := model.BandGridSize()
	observed := make([][]float64, size)
	for i := range observed {
		observed[i] = make([]float64, size)
	}
	truthHist := make([]float64, size)
	predHist := make([]float64, size)

	for i := 0; i < n; i++ {
		ti := model.BandIndex(model.RoundToBand(truth[i]))
		pi := model.BandIndex(model.RoundToBand(predictions[i]))
		observed[ti][pi]++
		truthHist[ti]++
		predHist[pi]++
	}

	denomWeight := float64((size - 1) * (size - 1))
	var num, den float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			w := float64((i-j)*(i-j)) / denomWeight
			expected := truthHist[i] * predHist[j] / float64(n)
			num += w * observed[i][j]
			den += w * expected
		}
	}

	if den == 0 {
		return 0
	}
	return 1 - num/den
}

// MeanAbsoluteError returns the mean |prediction - truth|.
func MeanAbsoluteError(truth, predictions []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var sum float64
	for i := range truth {
		sum += math.Abs(predictions[i] - truth[i])
	}
	return sum / float64(len(truth))
}

// WithinToleranceRate returns the fraction of predictions within tolerance of
// the truth.
func WithinToleranceRate(truth, predictions []float64, tolerance float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	within := 0
	for i := range truth {
		if math.Abs(predictions[i]-truth[i]) <= tolerance {
			within++
		}
	}
	return float64(within) / float64(len(truth))
}

// Pearson returns the linear correlation between x and y, or nil when it is
// undefined (fewer than two samples, or zero variance on either side).
func Pearson(x, y []float64) *float64 {
	n := len(x)
	if n < 2 || n != len(y) {
		return nil
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return nil
	}

	r := cov / math.Sqrt(varX*varY)
	return &r
}
