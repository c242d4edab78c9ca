package evaluation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cogniflow/agentrt/pkg/config"
)

// PriceTable maps a model ID to its per-1k-token unit prices, parsed once
// from config.EvaluationConfig.PriceTable's string-encoded decimals.
type PriceTable map[string]ModelPrice

// ModelPrice holds the three per-1k-token unit prices for one model.
type ModelPrice struct {
	PromptPerK     decimal.Decimal
	CompletionPerK decimal.Decimal
	EmbeddingPerK  decimal.Decimal
}

// LoadPriceTable parses config.EvaluationConfig.PriceTable's string prices
// into decimal.Decimal once at startup, so a malformed price in the config
// file fails fast rather than during a long evaluation run.
func LoadPriceTable(cfg map[string]config.PriceTableEntry) (PriceTable, error) {
	table := make(PriceTable, len(cfg))
	for modelID, entry := range cfg {
		prompt, err := decimal.NewFromString(entry.PromptPerKToken)
		if err != nil {
			return nil, fmt.Errorf("evaluation: price table %q prompt_per_1k_tokens: %w", modelID, err)
		}
		completion, err := decimal.NewFromString(entry.CompletionPerKToken)
		if err != nil {
			return nil, fmt.Errorf("evaluation: price table %q completion_per_1k_tokens: %w", modelID, err)
		}
		embedding, err := decimal.NewFromString(entry.EmbeddingPerKToken)
		if err != nil {
			return nil, fmt.Errorf("evaluation: price table %q embedding_per_1k_tokens: %w", modelID, err)
		}
		table[modelID] = ModelPrice{PromptPerK: prompt, CompletionPerK: completion, EmbeddingPerK: embedding}
	}
	return table, nil
}

// perThousand converts a token count to the "thousands of tokens" unit
// the price table is denominated in, as a decimal to avoid the float
// drift plain division would introduce over a long evaluation run.
func perThousand(tokens int64) decimal.Decimal {
	return decimal.NewFromInt(tokens).Div(decimal.NewFromInt(1000))
}

// CaseCost computes one case's cost against a named model's price entry.
// An unknown modelID returns zero cost rather than erroring, since a
// dataset case without cost tracking configured should still be scored —
// cost is a secondary metric, not a correctness gate.
func (t PriceTable) CaseCost(modelID string, usage Usage) decimal.Decimal {
	price, ok := t[modelID]
	if !ok {
		return decimal.Zero
	}
	cost := perThousand(usage.PromptTokens).Mul(price.PromptPerK)
	cost = cost.Add(perThousand(usage.CompletionTokens).Mul(price.CompletionPerK))
	cost = cost.Add(perThousand(usage.EmbeddingTokens).Mul(price.EmbeddingPerK))
	return cost
}

// TotalCost sums CaseCost across every result's recorded Usage.
func (t PriceTable) TotalCost(modelID string, results []CaseResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(t.CaseCost(modelID, r.Usage))
	}
	return total
}
