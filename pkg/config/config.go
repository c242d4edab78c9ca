package config

// Config is the fully loaded, validated, ready-to-use configuration for
// the process. It is built once at startup by Initialize and passed down
// explicitly as an injected dependency — never read from globals.
type Config struct {
	configDir string

	Embedding  *EmbeddingConfig
	Memory     *MemoryConfig
	Workflow   *WorkflowConfig
	Schedules  []ScheduleConfig
	Retention  *RetentionConfig
	LLM        map[string]LLMProviderConfig
	ObjectStore *ObjectStoreConfig
	Social     *SocialConfig
	HTTP       *HTTPConfig
	Evaluation *EvaluationConfig

	GraphNames []string // names of the graphs pkg/graph's Build* functions construct
}

// ConfigDir returns the directory this configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Collection looks up a collection's configuration by name.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	if c.Memory == nil {
		return CollectionConfig{}, false
	}
	cc, ok := c.Memory.Collections[name]
	return cc, ok
}

// Schedule looks up a schedule by id.
func (c *Config) Schedule(id string) (ScheduleConfig, bool) {
	for _, s := range c.Schedules {
		if s.ID == id {
			return s, true
		}
	}
	return ScheduleConfig{}, false
}

// LLMProvider looks up an LLM provider's configuration by name.
func (c *Config) LLMProvider(name string) (LLMProviderConfig, bool) {
	p, ok := c.LLM[name]
	return p, ok
}

// Stats summarizes the configuration for startup logging.
func (c *Config) Stats() Stats {
	s := Stats{
		Schedules:    len(c.Schedules),
		LLMProviders: len(c.LLM),
		Graphs:       len(c.GraphNames),
	}
	if c.Memory != nil {
		s.Collections = len(c.Memory.Collections)
	}
	return s
}
