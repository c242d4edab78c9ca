package evaluation

import "sort"

// Aggregate is the computed summary spec.md §4.6's aggregate() produces:
// overall/per-difficulty accuracy, p50/p95 latency, false-positive/
// false-negative rates where applicable, plus the mean of every
// domain-specific metric key seen across cases.
type Aggregate struct {
	TotalCases        int
	Accuracy          float64
	AccuracyByDifficulty map[Difficulty]float64
	P50Latency        float64 // milliseconds
	P95Latency        float64 // milliseconds
	FalsePositiveRate float64
	FalseNegativeRate float64
	DomainMetrics     map[string]float64
	ErrorCount        int
}

// AggregateResults folds a CaseResult slice into an Aggregate. False-
// positive/false-negative rates are computed from each result's
// "expected_matched"/"actual_matched" domain metric keys when present (the
// invoice-matcher scorer populates them); datasets whose scorer doesn't
// populate those keys simply report zero rates, which is the correct
// "not applicable" signal for a harness with no notion of a positive
// class (e.g. caption-quality scoring).
func AggregateResults(results []CaseResult) Aggregate {
	agg := Aggregate{
		TotalCases:           len(results),
		AccuracyByDifficulty: map[Difficulty]float64{},
		DomainMetrics:        map[string]float64{},
	}
	if len(results) == 0 {
		return agg
	}

	var correct int
	var errored int
	byDifficultyTotal := map[Difficulty]int{}
	byDifficultyCorrect := map[Difficulty]int{}
	latenciesMS := make([]float64, 0, len(results))
	metricSums := map[string]float64{}
	metricCounts := map[string]int{}
	var truePositive, falsePositive, trueNegative, falseNegative int

	for _, r := range results {
		if r.Err != nil {
			errored++
			continue
		}
		if r.Correct {
			correct++
		}
		byDifficultyTotal[r.Difficulty]++
		if r.Correct {
			byDifficultyCorrect[r.Difficulty]++
		}
		latenciesMS = append(latenciesMS, float64(r.Latency.Microseconds())/1000.0)

		for k, v := range r.Metrics {
			metricSums[k] += v
			metricCounts[k]++
		}

		expectedPositive, hasExpected := r.Metrics["expected_matched"]
		actualPositive, hasActual := r.Metrics["actual_matched"]
		if hasExpected && hasActual {
			switch {
			case expectedPositive == 1 && actualPositive == 1:
				truePositive++
			case expectedPositive == 0 && actualPositive == 1:
				falsePositive++
			case expectedPositive == 0 && actualPositive == 0:
				trueNegative++
			case expectedPositive == 1 && actualPositive == 0:
				falseNegative++
			}
		}
	}

	evaluated := len(results) - errored
	if evaluated > 0 {
		agg.Accuracy = float64(correct) / float64(evaluated)
	}
	for d, total := range byDifficultyTotal {
		if total > 0 {
			agg.AccuracyByDifficulty[d] = float64(byDifficultyCorrect[d]) / float64(total)
		}
	}
	agg.ErrorCount = errored

	if falsePositive+trueNegative > 0 {
		agg.FalsePositiveRate = float64(falsePositive) / float64(falsePositive+trueNegative)
	}
	if falseNegative+truePositive > 0 {
		agg.FalseNegativeRate = float64(falseNegative) / float64(falseNegative+truePositive)
	}

	agg.P50Latency = percentile(latenciesMS, 0.50)
	agg.P95Latency = percentile(latenciesMS, 0.95)

	for k, sum := range metricSums {
		if metricCounts[k] > 0 {
			agg.DomainMetrics[k] = sum / float64(metricCounts[k])
		}
	}

	return agg
}

// percentile computes the p-th percentile (0 < p <= 1) of values as the
// element at index floor(p·n) of a sorted copy, clamped to the last
// element (p50 of 1..100 is 51) — no external stats library needed, the
// arithmetic is a few lines.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := int(p*float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
