package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkarpov/bandmark/internal/pipeline"
	"github.com/pkarpov/bandmark/internal/worker"
)

var (
	batchConcurrency int
	batchOutput      string
	batchTimeout     time.Duration
	batchProvider    string
	batchModel       string
	batchPasses      int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dataset.jsonl>",
	Short: "Score multiple essays from a JSONL dataset in parallel",
	Long: `Batch scores a JSONL dataset concurrently:
- One JSON object per line: {"id": ..., "task_type": ..., "question": ..., "essay": ...}
- Essays are scored in parallel with a configurable worker count
- Each essay still gets its full multi-pass adjudication
- Results are written as JSONL, one line per input record

Example:
  bandmark batch essays.jsonl
  bandmark batch essays.jsonl --concurrency 8 --output results.jsonl
  bandmark batch essays.jsonl --provider ollama --model llama3.1:8b`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// batchLine is one output record. Failed essays carry the error instead of
// a score so a partial run is still usable. Overall and RawOverall must not
// hide legitimate 0.0 bands: overall is always emitted, and raw_overall is a
// pointer so absent and zero stay distinguishable across refits.
type batchLine struct {
	ID         string    `json:"id"`
	Overall    float64   `json:"overall"`
	Votes      []float64 `json:"votes,omitempty"`
	Dispersion float64   `json:"dispersion"`
	Confidence string    `json:"confidence,omitempty"`
	Human      *float64  `json:"human,omitempty"`
	RawOverall *float64  `json:"raw_overall,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// prediction returns the pre-calibration overall when recorded, falling back
// to the final overall for results written without one.
func (l batchLine) prediction() float64 {
	if l.RawOverall != nil {
		return *l.RawOverall
	}
	return l.Overall
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent essays (default from config)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "results.jsonl", "output JSONL path")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchProvider, "provider", "", "grading provider (openai, anthropic, ollama)")
	batchCmd.Flags().StringVar(&batchModel, "model", "", "grader model name")
	batchCmd.Flags().IntVar(&batchPasses, "passes", 0, "number of grading passes per essay")
}

func runBatch(cmd *cobra.Command, args []string) error {
	datasetPath := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchProvider != "" {
		cfg.Grader.Provider = batchProvider
	}
	if batchModel != "" {
		cfg.Grader.Model = batchModel
	}
	if batchPasses > 0 {
		cfg.Scoring.Passes = batchPasses
	}
	if batchConcurrency > 0 {
		cfg.Concurrency.Requests = batchConcurrency
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

	records, err := worker.ReadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Scoring %d essays with %d workers\n", len(records), cfg.Concurrency.Requests)
	}

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Requests)
	outcomes := processor.ProcessRecords(ctx, records)

	out, err := os.Create(batchOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = out.Close() }()

	enc := json.NewEncoder(out)
	scored, failed := 0, 0
	for _, o := range outcomes {
		line := batchLine{ID: o.Record.ID, Human: o.Record.Human}
		if o.Error != nil {
			failed++
			line.Error = o.Error.Error()
		} else {
			scored++
			line.Overall = o.Result.Overall
			line.Votes = o.Result.Votes
			line.Dispersion = o.Result.Dispersion
			line.Confidence = o.Result.Confidence
			raw := o.Result.Meta.RawOverall
			line.RawOverall = &raw
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	fmt.Printf("Scored %d essays, %d failed. Results: %s\n", scored, failed, batchOutput)
	return nil
}
