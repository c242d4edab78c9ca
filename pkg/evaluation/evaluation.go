// Package evaluation implements the C6 evaluation harness: it drives a
// graph or workflow against a dataset of labeled cases, scores each case
// against its domain's correctness definition, and aggregates per-case
// results into accuracy, latency, and cost metrics.
package evaluation

import (
	"context"
	"encoding/json"
	"time"
)

// Difficulty buckets a Case for per-difficulty accuracy reporting.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Case is one dataset entry: an input to run through the subject and the
// expected output to score it against.
type Case struct {
	ID         string          `json:"id"`
	Difficulty Difficulty      `json:"difficulty"`
	Input      json.RawMessage `json:"input"`
	Expected   json.RawMessage `json:"expected"`
}

// Dataset is an ordered sequence of Cases, loaded from a JSON file holding
// one object with a "name" and a "cases" array of Case objects.
type Dataset struct {
	Name  string `json:"name"`
	Cases []Case `json:"cases"`
}

// Usage records token consumption for one case's execution, fed into the
// cost tracker.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	EmbeddingTokens  int64
}

// Subject is anything the harness can drive: a graph, a workflow, or any
// adapter presenting this signature. It returns the raw actual output plus
// the token usage incurred producing it.
type Subject func(ctx context.Context, input json.RawMessage) (actual json.RawMessage, usage Usage, err error)

// Scorer computes whether actual matches expected for one domain, and any
// domain-specific per-case metrics (e.g. "decision_accuracy": 1.0/0.0).
type Scorer func(expected, actual json.RawMessage) (correct bool, metrics map[string]float64)

// CaseResult is the per-case outcome of Evaluate, per spec.md §4.6's
// CaseResult contract.
type CaseResult struct {
	CaseID     string
	Difficulty Difficulty
	Correct    bool
	Actual     json.RawMessage
	Expected   json.RawMessage
	Latency    time.Duration
	Err        error
	Metrics    map[string]float64
	Usage      Usage
}

// Evaluate runs subject against every case in dataset, scoring each with
// scorer. A subject error is recorded on the CaseResult (Correct=false)
// rather than aborting the run, so one bad case never hides the rest of
// the dataset's results.
func Evaluate(ctx context.Context, subject Subject, scorer Scorer, dataset Dataset) []CaseResult {
	results := make([]CaseResult, 0, len(dataset.Cases))
	for _, c := range dataset.Cases {
		start := time.Now()
		actual, usage, err := subject(ctx, c.Input)
		latency := time.Since(start)

		result := CaseResult{
			CaseID:     c.ID,
			Difficulty: c.Difficulty,
			Actual:     actual,
			Expected:   c.Expected,
			Latency:    latency,
			Err:        err,
			Usage:      usage,
		}
		if err != nil {
			results = append(results, result)
			continue
		}
		correct, metrics := scorer(c.Expected, actual)
		result.Correct = correct
		result.Metrics = metrics
		results = append(results, result)
	}
	return results
}
