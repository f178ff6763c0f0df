package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkarpov/bandmark/internal/metrics"
)

var evalTolerance float64

// evalDispersionCutoff matches the scoring default for the low-confidence label.
const evalDispersionCutoff = 0.5

// evalCmd represents the eval command
var evalCmd = &cobra.Command{
	Use:   "eval <results.jsonl>",
	Short: "Evaluate scored results against human bands",
	Long: `Eval computes agreement metrics between predicted and human bands:
- Quadratic weighted agreement on the band grid
- Mean absolute error
- Share of predictions within tolerance of the human band
- Correlation between vote dispersion and absolute error, when available
- Dispersion summary (mean, p50, p95) and the low-confidence rate

The input is the JSONL written by 'bandmark batch' over a labeled dataset
(records with a "human" field).

Example:
  bandmark eval results.jsonl
  bandmark eval results.jsonl --tolerance 1.0`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().Float64Var(&evalTolerance, "tolerance", 0.5, "acceptable |prediction - human| band")
}

func runEval(cmd *cobra.Command, args []string) error {
	lines, err := readScoredLines(args[0])
	if err != nil {
		return err
	}

	var truth, predictions, dispersions []float64
	hasDispersion := false
	for _, line := range lines {
		if line.Human == nil || line.Error != "" {
			continue
		}
		truth = append(truth, *line.Human)
		predictions = append(predictions, line.Overall)
		dispersions = append(dispersions, line.Dispersion)
		if line.Dispersion > 0 {
			hasDispersion = true
		}
	}
	if len(truth) == 0 {
		return fmt.Errorf("no labeled records in %s (need a \"human\" field)", args[0])
	}

	report, err := metrics.Compute(truth, predictions, nil, evalTolerance)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}

	fmt.Printf("Samples:                %d\n", report.SampleCount)
	fmt.Printf("Quadratic agreement:    %.4f\n", report.QuadraticWeightedAgreement)
	fmt.Printf("Mean absolute error:    %.4f\n", report.MeanAbsoluteError)
	fmt.Printf("Within %.1f of human:    %.1f%%\n", evalTolerance, report.WithinToleranceRate*100)

	// Does vote dispersion flag the essays the grader got wrong?
	if hasDispersion {
		absErr := make([]float64, len(truth))
		lowConfidence := 0
		for i := range truth {
			absErr[i] = math.Abs(predictions[i] - truth[i])
			if dispersions[i] > evalDispersionCutoff {
				lowConfidence++
			}
		}
		if r := metrics.Pearson(dispersions, absErr); r != nil {
			fmt.Printf("Dispersion/error corr:  %.4f\n", *r)
		}
		fmt.Printf("Dispersion:             mean %.2f  p50 %.1f  p95 %.1f\n",
			mean(dispersions), percentile(dispersions, 0.50), percentile(dispersions, 0.95))
		fmt.Printf("Low confidence:         %.1f%% (dispersion > %.1f)\n",
			float64(lowConfidence)/float64(len(truth))*100, evalDispersionCutoff)
	}
	return nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// readScoredLines reads the JSONL output of the batch command.
func readScoredLines(path string) ([]batchLine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []batchLine
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var line batchLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	return lines, nil
}
