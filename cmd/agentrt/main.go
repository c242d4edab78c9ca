// Command agentrt is the workflow execution platform's server process: it
// serves the HTTP status+trigger surface (pkg/api), runs the durable
// workflow worker pool (pkg/workflow), and polls persisted schedules
// (pkg/workflow/cron) into new executions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/clause"

	"github.com/cogniflow/agentrt/pkg/activity"
	"github.com/cogniflow/agentrt/pkg/api"
	"github.com/cogniflow/agentrt/pkg/cleanup"
	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/embedding"
	"github.com/cogniflow/agentrt/pkg/graph"
	"github.com/cogniflow/agentrt/pkg/llm"
	"github.com/cogniflow/agentrt/pkg/memory"
	"github.com/cogniflow/agentrt/pkg/metrics"
	"github.com/cogniflow/agentrt/pkg/objectstore"
	"github.com/cogniflow/agentrt/pkg/social"
	"github.com/cogniflow/agentrt/pkg/workflow"
	"github.com/cogniflow/agentrt/pkg/workflow/cron"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	logger.Info("configuration loaded",
		"collections", stats.Collections, "graphs", stats.Graphs,
		"schedules", stats.Schedules, "llm_providers", stats.LLMProviders)

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database client", "error", err)
		}
	}()
	logger.Info("connected to database")

	if err := seedSchedules(ctx, db, cfg.Schedules); err != nil {
		log.Fatalf("failed to seed schedules: %v", err)
	}

	mem, err := buildMemory(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build memory layer: %v", err)
	}

	metricsCollector := metrics.New("agentrt")
	mem.SetMetrics(metricsCollector)

	library, err := buildActivityLibrary(cfg, db, mem, metricsCollector)
	if err != nil {
		log.Fatalf("failed to build activity library: %v", err)
	}

	registry := buildRegistry(library)
	retry, timeouts := defaultRetryAndTimeouts(cfg.Workflow)
	rt := workflow.NewRuntime(db, registry, retry, timeouts)
	rt.SetMetrics(metricsCollector)
	if err := registerGraphWorkflows(rt, library); err != nil {
		log.Fatalf("failed to register workflows: %v", err)
	}

	podID := getEnv("POD_ID", "agentrt-"+uuidFallback())
	pool := workflow.NewWorkerPool(podID, db, rt, cfg.Workflow, logger)
	pool.Start(ctx)
	defer pool.Stop()

	scheduler := cron.NewScheduler(db, rt, 10*time.Second, logger)
	scheduler.SetMetrics(metricsCollector)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Retention != nil {
		reaper := cleanup.NewService(cfg.Retention, db)
		reaper.Start(ctx)
		defer reaper.Stop()
	}

	server := api.NewServer(cfg, db, rt, pool, mem, library, metricsCollector)

	bridge := newExecutionEventBridge(db, server, logger)
	go bridge.run(ctx)

	addr := ":" + getEnv("HTTP_PORT", "8080")
	if cfg.HTTP != nil && cfg.HTTP.Port != "" {
		addr = ":" + cfg.HTTP.Port
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
}

// seedSchedules inserts each configured schedule into the database as a
// ScheduleRecord, so the cron scheduler has rows to poll even on a fresh
// deployment. A schedule whose id already has a row is left untouched
// (ON CONFLICT DO NOTHING) — an operator's runtime pause/unpause via the
// API survives a redeploy, and edited config fields for an existing id
// are not written to its row.
func seedSchedules(ctx context.Context, db *database.Client, schedules []config.ScheduleConfig) error {
	for _, sc := range schedules {
		record := database.ScheduleRecord{
			ID:             sc.ID,
			CronExpression: sc.CronExpression,
			WorkflowType:   sc.WorkflowType,
			InputTemplate:  sc.InputTemplate,
			Paused:         sc.Paused,
			OverlapPolicy:  string(sc.OverlapPolicy),
			Note:           sc.Note,
		}
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoNothing: true,
			}).
			Create(&record).Error
		if err != nil {
			return fmt.Errorf("seed schedule %q: %w", sc.ID, err)
		}
	}
	return nil
}

func defaultRetryAndTimeouts(cfg *config.WorkflowConfig) (workflow.RetryPolicy, workflow.Timeouts) {
	retryCfg := config.DefaultRetryPolicy()
	timeoutCfg := config.DefaultTimeouts()
	if cfg != nil {
		if cfg.DefaultRetryPolicy != nil {
			retryCfg = cfg.DefaultRetryPolicy
		}
		if cfg.DefaultTimeouts != nil {
			timeoutCfg = cfg.DefaultTimeouts
		}
	}
	return workflow.RetryPolicy{
			InitialInterval:    retryCfg.InitialInterval,
			BackoffCoefficient: retryCfg.BackoffCoefficient,
			MaxInterval:        retryCfg.MaxInterval,
			MaxAttempts:        retryCfg.MaxAttempts,
		}, workflow.Timeouts{
			ScheduleToStart: timeoutCfg.ScheduleToStart,
			StartToClose:    timeoutCfg.StartToClose,
			Heartbeat:       timeoutCfg.Heartbeat,
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
		var err error
		cache, err = memory.NewCache(cacheCfg.Dir, cacheCfg.BudgetBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}

	return memory.New(store, cache, provider, cacheCfg, logger), nil
}

func buildLLM(cfg *config.Config, providerName string) (*llm.Client, error) {
	provider, ok := cfg.LLMProvider(providerName)
	if !ok {
		return nil, fmt.Errorf("no llm_providers entry named %q", providerName)
	}
	apiKey := ""
	if provider.APIKeyEnv != "" {
		apiKey = os.Getenv(provider.APIKeyEnv)
	}
	return llm.New(provider, apiKey)
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (*objectstore.Store, error) {
	if cfg.ObjectStore == nil {
		return nil, nil
	}
	accessKey := os.Getenv(cfg.ObjectStore.AccessKeyEnv)
	secretKey := os.Getenv(cfg.ObjectStore.SecretKeyEnv)
	return objectstore.New(ctx, cfg.ObjectStore, accessKey, secretKey)
}

func buildSocialPoster(cfg *config.Config) *social.Poster {
	if cfg.Social == nil {
		return nil
	}
	return social.New(cfg.Social, os.Getenv)
}

// llmImageDescriber adapts the configured LLM collaborator into
// graph.ImageDescriber: feed_publisher leaves the describe_image
// collaborator's implementation to the caller (spec.md §4.3.2).
type llmImageDescriber struct {
	client *llm.Client
}

func (d *llmImageDescriber) Describe(ctx context.Context, mediaURL string) (string, error) {
	prompt := fmt.Sprintf("Describe the image at %s in one concise sentence.", mediaURL)
	return d.client.Complete(ctx, prompt, &llm.CompleteOptions{Timeout: 30 * time.Second})
}

// buildActivityLibrary wires every graph this deployment knows how to run
// into a Library's Graphs registry, alongside the memory/object-store/
// social collaborators the activity methods delegate to.
func buildActivityLibrary(cfg *config.Config, db *database.Client, mem *memory.Memory, metricsCollector *metrics.Metrics) (*activity.Library, error) {
	store, err := buildObjectStore(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	poster := buildSocialPoster(cfg)

	graphs := map[string]activity.GraphRunner{}

	invoiceGraph, err := graph.BuildInvoiceMatcher(mem)
	if err != nil {
		return nil, fmt.Errorf("build invoice_matcher: %w", err)
	}
	invoiceGraph.SetMetrics("invoice_matcher", metricsCollector)
	graphs["invoice_matcher"] = activity.RunnerFor(invoiceGraph)

	if _, ok := cfg.LLMProvider("default"); ok {
		llmClient, err := buildLLM(cfg, "default")
		if err != nil {
			return nil, fmt.Errorf("build llm client: %w", err)
		}
		describer := &llmImageDescriber{client: llmClient}

		feedGraph, err := graph.BuildFeedPublisher(mem, describer, llmClient, poster, graph.FeedPublisherConfig{})
		if err != nil {
			return nil, fmt.Errorf("build feed_publisher: %w", err)
		}
		feedGraph.SetMetrics("feed_publisher", metricsCollector)
		graphs["feed_publisher"] = activity.RunnerFor(feedGraph)

		if store != nil {
			adGraph, err := graph.BuildAdReportSummarizer(store, llmClient, mem)
			if err != nil {
				return nil, fmt.Errorf("build ad_report_summarizer: %w", err)
			}
			adGraph.SetMetrics("ad_report_summarizer", metricsCollector)
			graphs["ad_report_summarizer"] = activity.RunnerFor(adGraph)
		}
	}

	return &activity.Library{
		Memory: mem,
		Store:  store,
		Poster: poster,
		DB:     db,
		Graphs: graphs,
	}, nil
}

// buildRegistry exposes every Library method as a named activity the
// workflow dispatcher can schedule, per spec.md §4.4's activity catalog.
func buildRegistry(library *activity.Library) workflow.Registry {
	return workflow.Registry{
		"memory_save":          workflow.WrapActivity(library.MemorySave),
		"memory_batch_save":    workflow.WrapActivity(library.MemoryBatchSave),
		"memory_search":        workflow.WrapActivity(library.MemorySearch),
		"memory_update_metadata": workflow.WrapActivityNoOutput(library.MemoryUpdateMetadata),
		"memory_delete":        workflow.WrapActivityNoOutput(library.MemoryDelete),
		"memory_stats":         workflow.WrapActivity(library.MemoryStats),
		"graph_run":            workflow.WrapActivity(library.GraphRun),
		"storage_fetch_object": workflow.WrapActivity(library.StorageFetchObject),
		"storage_list_objects": workflow.WrapActivity(library.StorageListObjects),
		"post_social":          workflow.WrapActivity(library.PostSocial),
		"report_save":          workflow.WrapActivityNoOutput(library.ReportSave),
	}
}

// registerGraphWorkflows registers one WorkflowFunc per graph in the
// Library's Graphs registry: each workflow's entire body is a single
// graph_run activity, so the graph's own node sequence (not the workflow
// layer) owns the state for everything inside it; the graph runtime never
// retries a node, so a node failure fails the graph_run activity as a
// whole, while the workflow layer still gets a durable event history and
// a status row for free.
func registerGraphWorkflows(rt *workflow.Runtime, library *activity.Library) error {
	for name := range library.Graphs {
		graphName := name
		err := rt.Register(graphName, func(wfCtx workflow.WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
			return wfCtx.ExecuteActivity("graph_run", activity.GraphRunInput{GraphName: graphName, State: input})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func uuidFallback() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return fmt.Sprintf("pid-%d", os.Getpid())
	}
	return hostname
}
