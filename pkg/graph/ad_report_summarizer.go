package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cogniflow/agentrt/pkg/llm"
	"github.com/cogniflow/agentrt/pkg/memory"
	"github.com/cogniflow/agentrt/pkg/objectstore"
)

// AdReportSummarizerState threads an ad-performance report through
// fetch_report → summarize_metrics → save_context. This graph is not
// named in spec.md's two core graphs, but it gives the ad_reports
// collection (declared in the data model but otherwise unused) a
// concrete producer/consumer, mirroring invoice_matcher's shape.
type AdReportSummarizerState struct {
	Brand      string
	ReportKey  string // object-store key
	ReportDate time.Time

	RawReport string
	Summary   string
}

// BuildAdReportSummarizer wires fetch_report → summarize_metrics →
// save_context over store/llmClient/mem.
func BuildAdReportSummarizer(store *objectstore.Store, llmClient *llm.Client, mem *memory.Memory) (*Graph[AdReportSummarizerState], error) {
	g := New[AdReportSummarizerState]()

	if err := g.AddNode("fetch_report", fetchReport(store)); err != nil {
		return nil, err
	}
	if err := g.AddNode("summarize_metrics", summarizeMetrics(llmClient)); err != nil {
		return nil, err
	}
	if err := g.AddNode("save_context", saveAdReportContext(mem)); err != nil {
		return nil, err
	}

	if err := g.SetEntry("fetch_report"); err != nil {
		return nil, err
	}
	if err := g.Connect("fetch_report", "summarize_metrics"); err != nil {
		return nil, err
	}
	if err := g.Connect("summarize_metrics", "save_context"); err != nil {
		return nil, err
	}
	if err := g.MarkTerminal("save_context"); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("ad_report_summarizer: %w", err)
	}
	return g, nil
}

func fetchReport(store *objectstore.Store) Node[AdReportSummarizerState] {
	return func(ctx context.Context, s AdReportSummarizerState) (NodeResult[AdReportSummarizerState], error) {
		raw, err := store.FetchObject(ctx, s.ReportKey)
		if err != nil {
			return NodeResult[AdReportSummarizerState]{}, err
		}
		next := s
		next.RawReport = string(raw)
		return NodeResult[AdReportSummarizerState]{State: next}, nil
	}
}

func summarizeMetrics(llmClient *llm.Client) Node[AdReportSummarizerState] {
	return func(ctx context.Context, s AdReportSummarizerState) (NodeResult[AdReportSummarizerState], error) {
		prompt := fmt.Sprintf("Summarize this ad performance report for brand %q in two sentences:\n%s", s.Brand, s.RawReport)
		summary, err := llmClient.Complete(ctx, prompt, nil)
		if err != nil {
			return NodeResult[AdReportSummarizerState]{}, err
		}
		next := s
		next.Summary = summary
		return NodeResult[AdReportSummarizerState]{State: next}, nil
	}
}

func saveAdReportContext(mem *memory.Memory) Node[AdReportSummarizerState] {
	return func(ctx context.Context, s AdReportSummarizerState) (NodeResult[AdReportSummarizerState], error) {
		_, err := mem.Save(ctx, "ad_reports", map[string]any{
			"brand":       s.Brand,
			"report_date": s.ReportDate.Format("2006-01-02"),
			"summary":     s.Summary,
		}, []string{"summary"})
		if err != nil {
			return NodeResult[AdReportSummarizerState]{}, err
		}
		return NodeResult[AdReportSummarizerState]{State: s}, nil
	}
}
