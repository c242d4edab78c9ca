package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/memory"
)

func TestBuildInvoiceQuery(t *testing.T) {
	s := InvoiceMatcherState{
		VendorName: "Acme Corp",
		Amount:     123.45,
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	result, err := buildInvoiceQuery(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp 123.45 2026-03-01", result.State.Query)
}

func TestCompareInvoices_NoCandidates(t *testing.T) {
	result, err := compareInvoices(context.Background(), InvoiceMatcherState{})
	require.NoError(t, err)
	assert.Equal(t, "no_match", result.State.DecisionType)
	assert.NotEmpty(t, result.Warnings)
}

func TestCompareInvoices_PicksBestCandidate(t *testing.T) {
	s := InvoiceMatcherState{
		VendorName: "Acme Corp",
		Amount:     100.0,
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Candidates: []memory.SearchResult{
			{ID: "weak", Payload: map[string]any{"vendor_name": "Globex", "amount": 500.0, "date": "2026-01-01"}},
			{ID: "strong", Payload: map[string]any{"vendor_name": "Acme Corp", "amount": 100.2, "date": "2026-03-01"}},
		},
	}
	result, err := compareInvoices(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "strong", result.State.BestID)
	assert.Equal(t, "auto_match", result.State.DecisionType)
}

func TestCompareInvoices_SkipsUnparseableDates(t *testing.T) {
	s := InvoiceMatcherState{
		VendorName: "Acme Corp",
		Amount:     100.0,
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Candidates: []memory.SearchResult{
			{ID: "bad-date", Payload: map[string]any{"vendor_name": "Acme Corp", "amount": 100.0, "date": "not-a-date"}},
		},
	}
	result, err := compareInvoices(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "no_match", result.State.DecisionType)
	assert.Contains(t, result.Warnings[0], "unparseable date")
}

func TestInvoiceRouter(t *testing.T) {
	assert.Equal(t, "save_context", invoiceRouter(InvoiceMatcherState{DecisionType: "auto_match"}))
	assert.Equal(t, "save_context", invoiceRouter(InvoiceMatcherState{DecisionType: "human_review"}))
	assert.Equal(t, "", invoiceRouter(InvoiceMatcherState{DecisionType: "no_match"}))
	assert.Equal(t, "", invoiceRouter(InvoiceMatcherState{}))
}

func TestBuildInvoiceMatcher_CompilesAndValidates(t *testing.T) {
	g, err := BuildInvoiceMatcher(nil)
	require.NoError(t, err)
	require.NotNil(t, g)
}
