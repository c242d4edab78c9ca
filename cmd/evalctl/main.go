// Command evalctl runs a golden dataset through a named graph and prints
// the resulting aggregate metrics table (spec.md §4.6).
//
// Usage:
//
//	evalctl run --graph invoice_matcher --dataset ./testdata/invoice_cases.json
//	evalctl run --graph feed_publisher --dataset ./testdata/caption_cases.json --model gpt-test
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/embedding"
	"github.com/cogniflow/agentrt/pkg/evaluation"
	"github.com/cogniflow/agentrt/pkg/graph"
	"github.com/cogniflow/agentrt/pkg/llm"
	"github.com/cogniflow/agentrt/pkg/memory"
)

var (
	configDir   string
	datasetPath string
	graphName   string
	modelID     string
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

var rootCmd = &cobra.Command{
	Use:   "evalctl",
	Short: "run evaluation datasets against agentrt graphs",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "evaluate a dataset against a named graph and print aggregate metrics",
	RunE:  runEval,
}

func init() {
	runCmd.Flags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	runCmd.Flags().StringVar(&datasetPath, "dataset", "", "path to a dataset JSON file (spec.md §4.6 Dataset shape)")
	runCmd.Flags().StringVar(&graphName, "graph", "", "graph to evaluate: invoice_matcher or feed_publisher")
	runCmd.Flags().StringVar(&modelID, "model", "", "price table model id for cost reporting (optional)")
	_ = runCmd.MarkFlagRequired("dataset")
	_ = runCmd.MarkFlagRequired("graph")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := slog.Default()

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("no .env file loaded", "path", envPath, "error", err)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	dataset, err := loadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	subject, scorer, err := buildSubject(cfg, logger, graphName)
	if err != nil {
		return fmt.Errorf("build graph %q: %w", graphName, err)
	}

	results := evaluation.Evaluate(ctx, subject, scorer, dataset)
	agg := evaluation.AggregateResults(results)

	if modelID != "" && cfg.Evaluation != nil {
		priceTable, err := evaluation.LoadPriceTable(cfg.Evaluation.PriceTable)
		if err != nil {
			return fmt.Errorf("load price table: %w", err)
		}
		total := priceTable.TotalCost(modelID, results)
		printReport(dataset.Name, graphName, agg, total.String())
		return nil
	}

	printReport(dataset.Name, graphName, agg, "")
	return nil
}

func loadDataset(path string) (evaluation.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return evaluation.Dataset{}, err
	}
	var dataset evaluation.Dataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return evaluation.Dataset{}, err
	}
	if dataset.Name == "" {
		dataset.Name = filepath.Base(path)
	}
	return dataset, nil
}

// buildSubject wires the configured embedding/vector-store/cache stack
// into the named graph and returns the evaluation.Subject/Scorer pair
// spec.md §4.6 defines for it.
func buildSubject(cfg *config.Config, logger *slog.Logger, name string) (evaluation.Subject, evaluation.Scorer, error) {
	mem, err := buildMemory(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	switch name {
	case "invoice_matcher":
		g, err := graph.BuildInvoiceMatcher(mem)
		if err != nil {
			return nil, nil, err
		}
		return evaluation.InvoiceMatcherSubject(g), evaluation.InvoiceScorer, nil
	case "feed_publisher":
		llmClient, err := buildLLM(cfg)
		if err != nil {
			return nil, nil, err
		}
		describer := &llmImageDescriber{client: llmClient}
		g, err := graph.BuildFeedPublisher(mem, describer, llmClient, nil, graph.FeedPublisherConfig{})
		if err != nil {
			return nil, nil, err
		}
		return evaluation.FeedPublisherSubject(g), evaluation.CaptionScorer, nil
	default:
		return nil, nil, fmt.Errorf("unknown graph %q (supported: invoice_matcher, feed_publisher)", name)
	}
}

func buildMemory(cfg *config.Config, logger *slog.Logger) (*memory.Memory, error) {
	if cfg.Embedding == nil {
		return nil, fmt.Errorf("no embedding configuration loaded")
	}

	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case "openai_compatible":
		apiKey := ""
		if cfg.Embedding.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Embedding.APIKeyEnv)
		}
		provider = embedding.NewOpenAICompatibleProvider(cfg.Embedding.BaseURL, apiKey, cfg.Embedding.Model, cfg.Embedding.Dimension)
	default:
		provider = embedding.NewDeterministicProvider(cfg.Embedding.Model, cfg.Embedding.Dimension)
	}

	var store *memory.VectorStore
	if cfg.Memory != nil && cfg.Memory.VectorStore != nil {
		apiKey := ""
		if cfg.Memory.VectorStore.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Memory.VectorStore.APIKeyEnv)
		}
		var err error
		store, err = memory.NewVectorStore(cfg.Memory.VectorStore, apiKey, cfg.Memory.Collections)
		if err != nil {
			return nil, fmt.Errorf("dial vector store: %w", err)
		}
	}

	var cache *memory.Cache
	var cacheCfg *config.CacheConfig
	if cfg.Memory != nil && cfg.Memory.Cache != nil {
		cacheCfg = cfg.Memory.Cache
		tmpDir, err := os.MkdirTemp("", "evalctl-cache-*")
		if err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		cache, err = memory.NewCache(tmpDir, cacheCfg.BudgetBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}

	return memory.New(store, cache, provider, cacheCfg, logger), nil
}

func buildLLM(cfg *config.Config) (*llm.Client, error) {
	provider, ok := cfg.LLMProvider(getEnv("EVALCTL_LLM_PROVIDER", "default"))
	if !ok {
		return nil, fmt.Errorf("no llm_providers entry named %q", getEnv("EVALCTL_LLM_PROVIDER", "default"))
	}
	apiKey := ""
	if provider.APIKeyEnv != "" {
		apiKey = os.Getenv(provider.APIKeyEnv)
	}
	return llm.New(provider, apiKey)
}

// llmImageDescriber adapts the llm_complete collaborator into
// graph.ImageDescriber for evaluation runs: the feed_publisher graph has
// no bundled image-description service of its own (spec.md §4.3.2 leaves
// the collaborator's implementation to the caller), so evalctl supplies
// one by prompting the configured LLM with the media URL.
type llmImageDescriber struct {
	client *llm.Client
}

func (d *llmImageDescriber) Describe(ctx context.Context, mediaURL string) (string, error) {
	prompt := fmt.Sprintf("Describe the image at %s in one concise sentence.", mediaURL)
	return d.client.Complete(ctx, prompt, &llm.CompleteOptions{Timeout: 30 * time.Second})
}

func printReport(datasetName, graphName string, agg evaluation.Aggregate, totalCost string) {
	fmt.Printf("dataset:        %s\n", datasetName)
	fmt.Printf("graph:          %s\n", graphName)
	fmt.Printf("total cases:    %d\n", agg.TotalCases)
	fmt.Printf("errors:         %d\n", agg.ErrorCount)
	fmt.Printf("accuracy:       %.4f\n", agg.Accuracy)
	for difficulty, acc := range agg.AccuracyByDifficulty {
		fmt.Printf("  %-10s  %.4f\n", difficulty, acc)
	}
	fmt.Printf("p50 latency:    %.1fms\n", agg.P50Latency)
	fmt.Printf("p95 latency:    %.1fms\n", agg.P95Latency)
	fmt.Printf("false positive: %.4f\n", agg.FalsePositiveRate)
	fmt.Printf("false negative: %.4f\n", agg.FalseNegativeRate)
	for metric, value := range agg.DomainMetrics {
		fmt.Printf("  %-20s %.4f\n", metric, value)
	}
	if totalCost != "" {
		fmt.Printf("total cost:     $%s\n", totalCost)
	}
}
