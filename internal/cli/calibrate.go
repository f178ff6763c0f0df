package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkarpov/bandmark/internal/calibrate"
	"github.com/pkarpov/bandmark/internal/metrics"
)

var (
	calibDir             string
	calibTolerance       float64
	calibAgreementWeight float64
	calibCoverageWeight  float64
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate <results.jsonl>",
	Short: "Fit a calibration model from scored results with human bands",
	Long: `Calibrate fits an affine correction (slope and intercept) that maps raw
median bands toward human examiner bands. The fit maximizes quadratic
agreement on the predictions that land within tolerance of the human
band, weighted against the share of predictions that do.

The input is the JSONL written by 'bandmark batch' over a labeled
dataset. Raw (uncalibrated) overalls are used when present, so results
produced with an older calibration model can be refit.

The fitted model is saved as a new versioned artifact; existing
artifacts are never overwritten.

Example:
  bandmark calibrate results.jsonl --dir ~/.bandmark/models
  bandmark calibrate results.jsonl --tolerance 1.0`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringVar(&calibDir, "dir", "", "directory for calibration artifacts (default from config)")
	calibrateCmd.Flags().Float64Var(&calibTolerance, "tolerance", 0.5, "acceptable |prediction - human| band")
	calibrateCmd.Flags().Float64Var(&calibAgreementWeight, "agreement-weight", 0.8, "objective weight on in-tolerance agreement")
	calibrateCmd.Flags().Float64Var(&calibCoverageWeight, "coverage-weight", 0.2, "objective weight on in-tolerance coverage")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	lines, err := readScoredLines(args[0])
	if err != nil {
		return err
	}

	var raw, truth []float64
	for _, line := range lines {
		if line.Human == nil || line.Error != "" {
			continue
		}
		// Prefer the pre-calibration overall so refits do not stack
		// on top of an older correction.
		raw = append(raw, line.prediction())
		truth = append(truth, *line.Human)
	}
	if len(raw) < 2 {
		return fmt.Errorf("need at least 2 labeled records, got %d", len(raw))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := calibDir
	if dir == "" {
		dir = cfg.Calibration.Dir
	}
	if dir == "" {
		return fmt.Errorf("no artifact directory: set --dir or calibration.dir in the config")
	}

	opts := calibrate.FitOptions{
		Tolerance:       calibTolerance,
		AgreementWeight: calibAgreementWeight,
		CoverageWeight:  calibCoverageWeight,
	}
	fitted, err := calibrate.Fit(raw, truth, opts)
	if err != nil {
		return fmt.Errorf("fit calibration: %w", err)
	}

	path, err := calibrate.Save(fitted, dir)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	// Before/after comparison on the training data.
	before, err := metrics.Compute(truth, raw, nil, calibTolerance)
	if err != nil {
		return err
	}
	calibrated := make([]float64, len(raw))
	for i, r := range raw {
		calibrated[i] = fitted.Apply(r)
	}
	after, err := metrics.Compute(truth, calibrated, nil, calibTolerance)
	if err != nil {
		return err
	}

	fmt.Printf("Fitted %s on %d samples\n", fitted.Version, fitted.TrainingSamples)
	fmt.Printf("  slope %.4f  intercept %.4f  objective %.4f\n", fitted.Slope, fitted.Intercept, fitted.Objective)
	fmt.Printf("  within %.1f:   %.1f%% -> %.1f%%\n", calibTolerance,
		before.WithinToleranceRate*100, after.WithinToleranceRate*100)
	fmt.Printf("  MAE:          %.3f -> %.3f\n", before.MeanAbsoluteError, after.MeanAbsoluteError)
	fmt.Printf("Saved: %s\n", path)
	return nil
}
