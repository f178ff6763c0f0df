// Package calibrate learns and applies a monotone affine correction from raw
// aggregated band scores to human-aligned scores. The fitting objective is
// quadratic-weighted agreement restricted to predictions within tolerance of
// the truth, plus a coverage term; plain least squares compresses prediction
// variance and degrades rank agreement, so it is deliberately not used.
package calibrate

import (
	"errors"
	"time"

	"github.com/pkarpov/bandmark/internal/model"
)

// ErrUnavailable is returned when no calibration model can be loaded. The
// pipeline treats this as a graceful degradation, not a fatal error.
var ErrUnavailable = errors.New("no calibration model available")

// Model is a fitted calibration artifact. It is written once by the offline
// fitting job and loaded read-only by the scoring path; it is never mutated.
// Swapping calibration means loading a new artifact, not editing this one.
type Model struct {
	Version         string    `json:"version"`
	Slope           float64   `json:"slope"`
	Intercept       float64   `json:"intercept"`
	Tolerance       float64   `json:"tolerance"`
	AgreementWeight float64   `json:"agreement_weight"`
	CoverageWeight  float64   `json:"coverage_weight"`
	TrainingSamples int       `json:"training_samples"`
	Objective       float64   `json:"objective"`
	FittedAt        time.Time `json:"fitted_at"`
}

// Apply maps a raw aggregated overall score onto the calibrated scale,
// clamped to the band range. The result is intentionally not grid-rounded:
// rounding happens exactly once, when the final result is assembled.
func (m *Model) Apply(raw float64) float64 {
	return model.ClampBand(m.Slope*raw + m.Intercept)
}
