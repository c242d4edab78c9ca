package graph

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cogniflow/agentrt/pkg/memory"
)

// InvoiceMatcherState is the state threaded through the invoice_matcher
// graph (spec.md §4.3.1).
type InvoiceMatcherState struct {
	VendorName    string
	Amount        float64
	Date          time.Time
	TransactionID string

	Query       string
	Candidates  []memory.SearchResult
	BestID      string
	Confidence  float64
	DecisionType string
}

// BuildInvoiceMatcher wires build_query → search_memory → compare_invoices
// → [router: save_context | end] over mem.
func BuildInvoiceMatcher(mem *memory.Memory) (*Graph[InvoiceMatcherState], error) {
	g := New[InvoiceMatcherState]()

	if err := g.AddNode("build_query", buildInvoiceQuery); err != nil {
		return nil, err
	}
	if err := g.AddNode("search_memory", searchInvoiceMemory(mem)); err != nil {
		return nil, err
	}
	if err := g.AddNode("compare_invoices", compareInvoices); err != nil {
		return nil, err
	}
	if err := g.AddNode("save_context", saveInvoiceContext(mem)); err != nil {
		return nil, err
	}

	if err := g.SetEntry("build_query"); err != nil {
		return nil, err
	}
	if err := g.Connect("build_query", "search_memory"); err != nil {
		return nil, err
	}
	if err := g.Connect("search_memory", "compare_invoices"); err != nil {
		return nil, err
	}
	if err := g.ConnectRouter("compare_invoices", invoiceRouter, []string{"save_context"}); err != nil {
		return nil, err
	}
	if err := g.MarkTerminal("compare_invoices"); err != nil {
		return nil, err
	}
	if err := g.MarkTerminal("save_context"); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invoice_matcher: %w", err)
	}
	return g, nil
}

func buildInvoiceQuery(_ context.Context, s InvoiceMatcherState) (NodeResult[InvoiceMatcherState], error) {
	next := s
	next.Query = fmt.Sprintf("%s %s %s", s.VendorName, strconv.FormatFloat(s.Amount, 'f', 2, 64), s.Date.Format("2006-01-02"))
	return NodeResult[InvoiceMatcherState]{State: next}, nil
}

func searchInvoiceMemory(mem *memory.Memory) Node[InvoiceMatcherState] {
	return func(ctx context.Context, s InvoiceMatcherState) (NodeResult[InvoiceMatcherState], error) {
		results, err := mem.Search(ctx, "invoices", s.Query, 10,
			[]memory.Filter{{Field: "matched", Op: memory.OpEq, Value: false}}, nil)
		if err != nil {
			return NodeResult[InvoiceMatcherState]{}, err
		}
		next := s
		next.Candidates = results
		return NodeResult[InvoiceMatcherState]{State: next}, nil
	}
}

func compareInvoices(_ context.Context, s InvoiceMatcherState) (NodeResult[InvoiceMatcherState], error) {
	var warnings []string
	if len(s.Candidates) == 0 {
		next := s
		next.DecisionType = "no_match"
		warnings = append(warnings, "no candidate invoices returned by search_memory")
		return NodeResult[InvoiceMatcherState]{State: next, Warnings: warnings}, nil
	}

	var best memory.SearchResult
	bestConfidence := -1.0
	for _, cand := range s.Candidates {
		vendorName, _ := cand.Payload["vendor_name"].(string)
		amount, _ := cand.Payload["amount"].(float64)
		dateStr, _ := cand.Payload["date"].(string)
		candDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("candidate %s: unparseable date %q", cand.ID, dateStr))
			continue
		}

		vendor := vendorSimilarity(s.VendorName, vendorName)
		amt := amountSimilarity(s.Amount, amount)
		date := dateSimilarity(s.Date, candDate)
		confidence := invoiceConfidence(vendor, amt, date)

		if confidence > bestConfidence {
			bestConfidence = confidence
			best = cand
		}
	}

	if bestConfidence < 0 {
		next := s
		next.DecisionType = "no_match"
		return NodeResult[InvoiceMatcherState]{State: next, Warnings: warnings}, nil
	}

	next := s
	next.BestID = best.ID
	next.Confidence = bestConfidence
	next.DecisionType = invoiceDecisionType(bestConfidence)
	return NodeResult[InvoiceMatcherState]{State: next, Warnings: warnings}, nil
}

func invoiceRouter(s InvoiceMatcherState) string {
	if s.DecisionType != "no_match" && s.DecisionType != "" {
		return "save_context"
	}
	return ""
}

func saveInvoiceContext(mem *memory.Memory) Node[InvoiceMatcherState] {
	return func(ctx context.Context, s InvoiceMatcherState) (NodeResult[InvoiceMatcherState], error) {
		_, err := mem.Save(ctx, "agent_context", map[string]any{
			"agent_name":     "invoice_matcher",
			"context_type":   s.DecisionType,
			"confidence":     s.Confidence,
			"transaction_id": s.TransactionID,
		}, []string{"agent_name", "context_type", "transaction_id"})
		if err != nil {
			return NodeResult[InvoiceMatcherState]{}, err
		}
		return NodeResult[InvoiceMatcherState]{State: s}, nil
	}
}
