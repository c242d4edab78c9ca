package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete agentrt.yaml file structure.
type YAMLConfig struct {
	Embedding   *EmbeddingConfig            `yaml:"embedding"`
	Memory      *memoryYAML                 `yaml:"memory"`
	Workflow    *WorkflowConfig             `yaml:"workflow"`
	Schedules   []ScheduleConfig            `yaml:"schedules"`
	Retention   *RetentionConfig            `yaml:"retention"`
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	ObjectStore *ObjectStoreConfig          `yaml:"object_store"`
	Social      *SocialConfig               `yaml:"social"`
	HTTP        *HTTPConfig                 `yaml:"http"`
	Evaluation  *EvaluationConfig           `yaml:"evaluation"`
}

type memoryYAML struct {
	Cache       *CacheConfig                `yaml:"cache"`
	VectorStore *VectorStoreConfig          `yaml:"vector_store"`
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load agentrt.yaml from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined collections and LLM providers
//  4. Apply default values for anything left unset
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"collections", stats.Collections,
		"graphs", stats.Graphs,
		"schedules", stats.Schedules,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	var yc YAMLConfig
	yc.LLMProviders = make(map[string]LLMProviderConfig)
	if err := loader.loadYAML("agentrt.yaml", &yc); err != nil {
		return nil, NewLoadError("agentrt.yaml", err)
	}

	embedding := yc.Embedding
	if embedding == nil {
		embedding = DefaultEmbeddingConfig()
	}

	cache := DefaultCacheConfig()
	vectorStore := DefaultVectorStoreConfig()
	userCollections := map[string]CollectionConfig{}
	if yc.Memory != nil {
		if yc.Memory.Cache != nil {
			cache = yc.Memory.Cache
		}
		if yc.Memory.VectorStore != nil {
			vectorStore = yc.Memory.VectorStore
		}
		userCollections = yc.Memory.Collections
	}
	collections := mergeCollections(builtinCollections(), userCollections)

	workflowCfg := DefaultWorkflowConfig()
	if yc.Workflow != nil {
		workflowCfg = yc.Workflow
		if workflowCfg.DefaultRetryPolicy == nil {
			workflowCfg.DefaultRetryPolicy = DefaultRetryPolicy()
		}
		if workflowCfg.DefaultTimeouts == nil {
			workflowCfg.DefaultTimeouts = DefaultTimeouts()
		}
	}

	retention := yc.Retention
	if retention == nil {
		retention = DefaultRetentionConfig()
	}

	httpCfg := yc.HTTP
	if httpCfg == nil {
		httpCfg = DefaultHTTPConfig()
	}

	llmProviders := mergeLLMProviders(map[string]LLMProviderConfig{}, yc.LLMProviders)

	return &Config{
		configDir: configDir,
		Embedding: embedding,
		Memory: &MemoryConfig{
			Cache:       cache,
			VectorStore: vectorStore,
			Collections: collections,
		},
		Workflow:    workflowCfg,
		Schedules:   yc.Schedules,
		Retention:   retention,
		LLM:         llmProviders,
		ObjectStore: yc.ObjectStore,
		Social:      yc.Social,
		HTTP:        httpCfg,
		Evaluation:  yc.Evaluation,
		GraphNames:  builtinGraphNames(),
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}
