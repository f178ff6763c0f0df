package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkarpov/bandmark/internal/model"
	"github.com/pkarpov/bandmark/internal/pipeline"
)

var (
	scoreTaskType   string
	scoreQuestion   string
	scoreProvider   string
	scoreModel      string
	scorePasses     int
	scoreTimeout    time.Duration
	scoreOutJSON    string
	scoreNoCache    bool
	scoreNoCalib    bool
	scoreCalibDir   string
	scoreCalibModel string
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <essay-file>",
	Short: "Score a single essay with multi-pass adjudication",
	Long: `Score reads an essay from a file and grades it:
- Runs N independent grading passes against the configured provider
- Validates each response against the band rubric schema
- Verifies every evidence quote against the essay text
- Reduces pass votes by median and reports dispersion and confidence
- Applies the newest calibration model to the overall band

Example:
  bandmark score essay.txt
  bandmark score essay.txt --question question.txt --passes 5
  bandmark score essay.txt --provider ollama --model llama3.1:8b
  bandmark score essay.txt --json result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreTaskType, "task", "task2", "writing task type")
	scoreCmd.Flags().StringVar(&scoreQuestion, "question", "", "task question file (optional)")
	scoreCmd.Flags().StringVar(&scoreProvider, "provider", "", "grading provider (openai, anthropic, ollama)")
	scoreCmd.Flags().StringVar(&scoreModel, "model", "", "grader model name")
	scoreCmd.Flags().IntVar(&scorePasses, "passes", 0, "number of grading passes (default from config)")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 5*time.Minute, "overall scoring timeout")
	scoreCmd.Flags().StringVar(&scoreOutJSON, "json", "", "write full result JSON to this path")
	scoreCmd.Flags().BoolVar(&scoreNoCache, "no-cache", false, "disable result cache")
	scoreCmd.Flags().BoolVar(&scoreNoCalib, "no-calibration", false, "report the raw median without calibration")
	scoreCmd.Flags().StringVar(&scoreCalibDir, "calibration-dir", "", "directory holding calibration artifacts")
	scoreCmd.Flags().StringVar(&scoreCalibModel, "calibration-model", "", "specific calibration artifact to load")
}

func runScore(cmd *cobra.Command, args []string) error {
	essayPath := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()

	essay, err := os.ReadFile(essayPath)
	if err != nil {
		return fmt.Errorf("read essay: %w", err)
	}

	question := ""
	if scoreQuestion != "" {
		data, err := os.ReadFile(scoreQuestion)
		if err != nil {
			return fmt.Errorf("read question: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scoreProvider != "" {
		cfg.Grader.Provider = scoreProvider
	}
	if scoreModel != "" {
		cfg.Grader.Model = scoreModel
	}
	if scorePasses > 0 {
		cfg.Scoring.Passes = scorePasses
	}
	if scoreNoCache {
		cfg.Cache.Enabled = false
	}
	if scoreNoCalib {
		cfg.Calibration.Disabled = true
	}
	if scoreCalibDir != "" {
		cfg.Calibration.Dir = scoreCalibDir
	}
	if scoreCalibModel != "" {
		cfg.Calibration.ModelPath = scoreCalibModel
	}

	if err := resolveProviderEnv(cfg); err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}

	result, err := p.Score(ctx, model.ScoringRequest{
		TaskType: scoreTaskType,
		Question: question,
		Essay:    string(essay),
	})
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	if scoreOutJSON != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if err := os.WriteFile(scoreOutJSON, data, 0644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote result: %s\n", scoreOutJSON)
		}
	}

	printResult(result)
	return nil
}

// printResult renders a compact human-readable summary to stdout.
func printResult(result *model.FinalResult) {
	fmt.Printf("Overall band:  %.1f (%s confidence)\n", result.Overall, result.Confidence)
	fmt.Printf("Votes:         %v  dispersion %.1f\n", result.Votes, result.Dispersion)
	for _, c := range result.PerCriterion {
		fmt.Printf("  %-22s %.1f\n", c.Name, c.Band)
	}
	fmt.Printf("Valid passes:  %d   dropped evidence: %d\n",
		result.Meta.ValidPasses, result.Meta.DroppedEvidence)
	fmt.Printf("Calibration:   %s (raw %.2f)\n",
		result.Meta.CalibrationVersion, result.Meta.RawOverall)
	fmt.Printf("Tokens:        %d in / %d out   %.1fs\n",
		result.Meta.InputTokens, result.Meta.OutputTokens, result.Meta.ScoringSeconds)
}
