package config

import "time"

// FieldType is a declared scalar type for a Collection payload field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "integer"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldDate   FieldType = "date" // ISO-8601 date string
)

// CollectionConfig declares one memory collection's vector dimension and
// payload schema. Writes with fields not present in Schema are rejected.
type CollectionConfig struct {
	Dimension int                  `yaml:"dimension"`
	Schema    map[string]FieldType `yaml:"schema"`
}

// EmbeddingConfig configures the embedding provider (C1).
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"` // "deterministic" or "openai_compatible"
	Model           string `yaml:"model"`
	Dimension       int    `yaml:"dimension"`
	BaseURL         string `yaml:"base_url,omitempty"`
	APIKeyEnv       string `yaml:"api_key_env,omitempty"`
	BatchSize       int    `yaml:"batch_size"`
	MaxConcurrency  int    `yaml:"max_concurrency"`
	TokensPerMinute int    `yaml:"tokens_per_minute"`
	MaxRetries      int    `yaml:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// VectorStoreConfig configures the Weaviate-backed vector store.
type VectorStoreConfig struct {
	Scheme       string `yaml:"scheme"`
	Host         string `yaml:"host"`
	APIKeyEnv    string `yaml:"api_key_env,omitempty"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfConstr int    `yaml:"hnsw_ef_construct"`
}

// CacheConfig configures the embedded two-tier disposable cache.
type CacheConfig struct {
	Dir             string        `yaml:"dir"`
	BudgetBytes     int64         `yaml:"budget_bytes"`
	EmbeddingTTL    time.Duration `yaml:"embedding_ttl"`
	QueryTTL        time.Duration `yaml:"query_ttl"`
	SessionStateTTL time.Duration `yaml:"session_state_ttl"`
}

// MemoryConfig groups the C2 memory layer's dependencies.
type MemoryConfig struct {
	Cache       *CacheConfig                `yaml:"cache"`
	VectorStore *VectorStoreConfig          `yaml:"vector_store"`
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// RetryPolicyConfig is the activity retry policy, per spec.md §4.5.
type RetryPolicyConfig struct {
	InitialInterval   time.Duration `yaml:"initial_interval"`
	BackoffCoefficient float64      `yaml:"backoff_coefficient"`
	MaxInterval       time.Duration `yaml:"max_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
}

// DefaultRetryPolicy returns the spec-mandated default: 1s initial, 2x
// backoff, 60s cap, 3 attempts.
func DefaultRetryPolicy() *RetryPolicyConfig {
	return &RetryPolicyConfig{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2.0,
		MaxInterval:        60 * time.Second,
		MaxAttempts:        3,
	}
}

// TimeoutConfig is the three timeout classes per spec.md §4.5.
type TimeoutConfig struct {
	ScheduleToStart time.Duration `yaml:"schedule_to_start"`
	StartToClose    time.Duration `yaml:"start_to_close"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// DefaultTimeouts returns conservative defaults for activity timeouts.
func DefaultTimeouts() *TimeoutConfig {
	return &TimeoutConfig{
		ScheduleToStart: 30 * time.Second,
		StartToClose:    5 * time.Minute,
		Heartbeat:       30 * time.Second,
	}
}

// WorkflowConfig configures the durable workflow runtime and its worker
// pool (C5). Named WorkflowConfig rather than QueueConfig: the underlying
// table is WorkflowExecution, not AlertSession, but the worker-pool shape
// (poll interval, worker count, claim timeout) is unchanged from the
// teacher's queue configuration.
type WorkflowConfig struct {
	WorkerCount             int                `yaml:"worker_count"`
	PollInterval            time.Duration      `yaml:"poll_interval"`
	ClaimTimeout            time.Duration      `yaml:"claim_timeout"`
	HeartbeatInterval       time.Duration      `yaml:"heartbeat_interval"`
	MaxConcurrentExecutions int                `yaml:"max_concurrent_executions"`
	DefaultRetryPolicy      *RetryPolicyConfig `yaml:"default_retry_policy"`
	DefaultTimeouts         *TimeoutConfig     `yaml:"default_timeouts"`
	OrphanScanInterval      time.Duration      `yaml:"orphan_scan_interval"`

	// MaxReclaimAttempts bounds how many times the orphan scanner will
	// unclaim a stale execution and hand it back to the claimable queue
	// for another worker to resume (spec.md §8 S6). An execution that
	// exceeds this is marked failed instead, so a workflow whose
	// function itself crashes the process on every attempt can't loop
	// forever.
	MaxReclaimAttempts int `yaml:"max_reclaim_attempts"`
}

// DefaultWorkflowConfig returns built-in defaults for the worker pool.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		WorkerCount:             4,
		PollInterval:            2 * time.Second,
		ClaimTimeout:            10 * time.Second,
		HeartbeatInterval:       15 * time.Second,
		MaxConcurrentExecutions: 20,
		DefaultRetryPolicy:      DefaultRetryPolicy(),
		DefaultTimeouts:         DefaultTimeouts(),
		OrphanScanInterval:      1 * time.Minute,
		MaxReclaimAttempts:      3,
	}
}

// OverlapPolicy controls what happens when a Schedule fires while its
// previous workflow execution is still running.
type OverlapPolicy string

const (
	OverlapSkip      OverlapPolicy = "skip"
	OverlapBufferOne OverlapPolicy = "buffer_one"
	OverlapAllowAll  OverlapPolicy = "allow_all"
)

// ScheduleConfig is a stored cron/interval specification that fires
// workflow executions, per spec.md §3/§4.5/§6.
type ScheduleConfig struct {
	ID             string        `yaml:"id"`
	CronExpression string        `yaml:"cron_expression"` // POSIX 5-field or "HH:MM[,HH:MM...]"
	WorkflowType   string        `yaml:"workflow_type"`
	InputTemplate  string        `yaml:"input_template"` // JSON template
	Paused         bool          `yaml:"paused"`
	OverlapPolicy  OverlapPolicy `yaml:"overlap_policy"`
	Note           string        `yaml:"note,omitempty"`
}

// LLMProviderConfig configures the external LLM collaborator.
type LLMProviderConfig struct {
	Provider    string  `yaml:"provider"` // langchaingo-supported provider name
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ObjectStoreConfig configures the S3-compatible object storage contract.
type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyEnv    string `yaml:"access_key_env"`
	SecretKeyEnv    string `yaml:"secret_key_env"`
}

// SocialConfig configures the social-media posting contract per platform.
type SocialConfig struct {
	Platforms map[string]SocialPlatformConfig `yaml:"platforms"`
}

// SocialPlatformConfig holds one platform's credential and endpoint config.
type SocialPlatformConfig struct {
	TokenEnv string `yaml:"token_env"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// HTTPConfig configures the status+trigger HTTP surface (pkg/api).
type HTTPConfig struct {
	Port             string   `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// PriceTableEntry is the unit price (USD per 1000 tokens) used by the
// evaluation harness's cost tracker.
type PriceTableEntry struct {
	PromptPerKToken     string `yaml:"prompt_per_1k_tokens"`     // parsed with shopspring/decimal
	CompletionPerKToken string `yaml:"completion_per_1k_tokens"`
	EmbeddingPerKToken  string `yaml:"embedding_per_1k_tokens"`
}

// EvaluationConfig configures the evaluation harness (C6).
type EvaluationConfig struct {
	DatasetDir string                     `yaml:"dataset_dir"`
	PriceTable map[string]PriceTableEntry `yaml:"price_table"` // keyed by model id
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Collections int
	Graphs      int
	Schedules   int
	LLMProviders int
}
