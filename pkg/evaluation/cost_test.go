package evaluation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/config"
)

func TestLoadPriceTable_ParsesDecimalStrings(t *testing.T) {
	table, err := LoadPriceTable(map[string]config.PriceTableEntry{
		"gpt-test": {PromptPerKToken: "0.01", CompletionPerKToken: "0.03", EmbeddingPerKToken: "0.001"},
	})
	require.NoError(t, err)
	price := table["gpt-test"]
	assert.True(t, price.PromptPerK.Equal(decimal.RequireFromString("0.01")))
}

func TestLoadPriceTable_RejectsMalformedPrice(t *testing.T) {
	_, err := LoadPriceTable(map[string]config.PriceTableEntry{
		"bad": {PromptPerKToken: "not-a-number"},
	})
	assert.Error(t, err)
}

func TestPriceTable_CaseCost(t *testing.T) {
	table, err := LoadPriceTable(map[string]config.PriceTableEntry{
		"gpt-test": {PromptPerKToken: "1.00", CompletionPerKToken: "2.00", EmbeddingPerKToken: "0.50"},
	})
	require.NoError(t, err)

	cost := table.CaseCost("gpt-test", Usage{PromptTokens: 1000, CompletionTokens: 500, EmbeddingTokens: 2000})
	// 1*1.00 + 0.5*2.00 + 2*0.50 = 1.00 + 1.00 + 1.00 = 3.00
	assert.True(t, cost.Equal(decimal.RequireFromString("3.00")), "got %s", cost.String())
}

func TestPriceTable_CaseCost_UnknownModelIsZero(t *testing.T) {
	table, err := LoadPriceTable(map[string]config.PriceTableEntry{})
	require.NoError(t, err)
	cost := table.CaseCost("nonexistent", Usage{PromptTokens: 1000})
	assert.True(t, cost.IsZero())
}

func TestPriceTable_TotalCost_SumsAcrossResults(t *testing.T) {
	table, err := LoadPriceTable(map[string]config.PriceTableEntry{
		"gpt-test": {PromptPerKToken: "1.00", CompletionPerKToken: "0", EmbeddingPerKToken: "0"},
	})
	require.NoError(t, err)

	results := []CaseResult{
		{Usage: Usage{PromptTokens: 1000}},
		{Usage: Usage{PromptTokens: 2000}},
	}
	total := table.TotalCost("gpt-test", results)
	assert.True(t, total.Equal(decimal.RequireFromString("3.00")), "got %s", total.String())
}
