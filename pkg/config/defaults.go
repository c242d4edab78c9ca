package config

import "time"

// builtinCollections declares the four collections spec.md §3 names, with
// the payload schema each graph actually writes. User YAML may add more
// collections or extend schemas; it may not redeclare these four with an
// incompatible dimension.
func builtinCollections() map[string]CollectionConfig {
	return map[string]CollectionConfig{
		"invoices": {
			Dimension: 1536,
			Schema: map[string]FieldType{
				"vendor_name":    FieldString,
				"amount":         FieldFloat,
				"date":           FieldDate,
				"matched":        FieldBool,
				"transaction_id": FieldString,
			},
		},
		"social_posts": {
			Dimension: 1536,
			Schema: map[string]FieldType{
				"brand":     FieldString,
				"platform":  FieldString,
				"published": FieldBool,
				"caption":   FieldString,
			},
		},
		"ad_reports": {
			Dimension: 1536,
			Schema: map[string]FieldType{
				"brand":       FieldString,
				"report_date": FieldDate,
				"summary":     FieldString,
			},
		},
		"agent_context": {
			Dimension: 1536,
			Schema: map[string]FieldType{
				"agent_name":     FieldString,
				"context_type":   FieldString,
				"confidence":     FieldFloat,
				"transaction_id": FieldString,
			},
		},
	}
}

// builtinGraphNames lists the graphs pkg/graph builds (BuildInvoiceMatcher,
// BuildFeedPublisher, BuildAdReportSummarizer).
func builtinGraphNames() []string {
	return []string{"invoice_matcher", "feed_publisher", "ad_report_summarizer"}
}

// DefaultEmbeddingConfig returns the built-in embedding provider defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Provider:        "deterministic",
		Model:           "local-deterministic-v1",
		Dimension:       1536,
		BatchSize:       100,
		MaxConcurrency:  10,
		TokensPerMinute: 1_000_000,
		MaxRetries:      5,
		RequestTimeout:  30 * time.Second,
	}
}

// DefaultCacheConfig returns the built-in two-tier cache defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Dir:             "./data/cache",
		BudgetBytes:     512 * 1024 * 1024,
		EmbeddingTTL:    7 * 24 * time.Hour,
		QueryTTL:        1 * time.Hour,
		SessionStateTTL: 24 * time.Hour,
	}
}

// DefaultVectorStoreConfig returns the built-in vector store defaults.
func DefaultVectorStoreConfig() *VectorStoreConfig {
	return &VectorStoreConfig{
		Scheme:       "http",
		Host:         "localhost:8080",
		HNSWM:        16,
		HNSWEfConstr: 100,
	}
}

// DefaultHTTPConfig returns the built-in HTTP surface defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Port:             "8090",
		AllowedWSOrigins: []string{"http://localhost:5173"},
	}
}
