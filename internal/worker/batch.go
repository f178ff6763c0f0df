package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkarpov/bandmark/internal/model"
)

// Scorer defines the interface for scoring a single essay
type Scorer interface {
	Score(ctx context.Context, req model.ScoringRequest) (*model.FinalResult, error)
}

// DatasetRecord is one line of a JSONL dataset. Human holds the examiner
// band when the dataset is labeled; it is nil for unlabeled records.
type DatasetRecord struct {
	ID       string   `json:"id"`
	TaskType string   `json:"task_type"`
	Question string   `json:"question,omitempty"`
	Essay    string   `json:"essay"`
	Human    *float64 `json:"human,omitempty"`
}

// ScoreJob represents one essay scoring job
type ScoreJob struct {
	Record DatasetRecord
	Scorer Scorer
}

// Execute executes the scoring job
func (j *ScoreJob) Execute(ctx context.Context) Result {
	result, err := j.Scorer.Score(ctx, model.ScoringRequest{
		TaskType: j.Record.TaskType,
		Question: j.Record.Question,
		Essay:    j.Record.Essay,
	})
	return &ScoreOutcome{
		Record: j.Record,
		Result: result,
		Error:  err,
	}
}

// ScoreOutcome represents the result of a scoring job
type ScoreOutcome struct {
	Record DatasetRecord
	Result *model.FinalResult
	Error  error
}

// GetError returns the error from the scoring outcome
func (r *ScoreOutcome) GetError() error {
	return r.Error
}

// BatchProcessor scores multiple essays concurrently
type BatchProcessor struct {
	scorer      Scorer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(scorer Scorer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		scorer:      scorer,
		concurrency: concurrency,
	}
}

// ProcessRecords scores multiple essays concurrently
func (b *BatchProcessor) ProcessRecords(ctx context.Context, records []DatasetRecord) []*ScoreOutcome {
	if len(records) == 0 {
		return []*ScoreOutcome{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, record := range records {
		job := &ScoreJob{
			Record: record,
			Scorer: b.scorer,
		}
		pool.Submit(job)
	}

	results := pool.Wait()

	outcomes := make([]*ScoreOutcome, len(results))
	for i, result := range results {
		outcomes[i] = result.(*ScoreOutcome)
	}

	return outcomes
}

// ProcessFile reads a JSONL dataset and scores every record concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ScoreOutcome, error) {
	records, err := ReadDataset(filePath)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	return b.ProcessRecords(ctx, records), nil
}

// ReadDataset reads dataset records from a JSONL file (one JSON object per
// line). Blank lines and # comments are skipped; duplicate IDs keep the
// first occurrence.
func ReadDataset(filePath string) ([]DatasetRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []DatasetRecord
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // essays can be long lines
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var record DatasetRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if record.Essay == "" {
			return nil, fmt.Errorf("line %d: record has no essay", lineNo)
		}

		if record.ID != "" && seen[record.ID] {
			continue
		}
		if record.ID != "" {
			seen[record.ID] = true
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return records, nil
}
