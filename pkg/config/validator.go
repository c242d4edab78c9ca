package config

import (
	"fmt"
)

// Validator performs comprehensive validation on loaded configuration,
// section by section, stopping at the first error it finds.
type Validator struct {
	cfg *Config
}

// NewValidator constructs a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every sub-section of the configuration, returning
// the first error found (configuration is fixed at startup; operators
// fix one error, rerun, see the next — matching the teacher's
// fail-fast posture for config).
func (v *Validator) ValidateAll() error {
	if err := v.validateEmbedding(); err != nil {
		return err
	}
	if err := v.validateMemory(); err != nil {
		return err
	}
	if err := v.validateWorkflow(); err != nil {
		return err
	}
	if err := v.validateSchedules(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateEmbedding() error {
	e := v.cfg.Embedding
	if e == nil {
		return NewValidationError("embedding", "", "", fmt.Errorf("%w: embedding config", ErrMissingRequiredField))
	}
	if e.Dimension <= 0 {
		return NewValidationError("embedding", e.Provider, "dimension", ErrInvalidValue)
	}
	if e.Provider == "openai_compatible" && e.APIKeyEnv == "" {
		return NewValidationError("embedding", e.Provider, "api_key_env", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateMemory() error {
	m := v.cfg.Memory
	if m == nil {
		return NewValidationError("memory", "", "", fmt.Errorf("%w: memory config", ErrMissingRequiredField))
	}
	for name, cc := range m.Collections {
		if cc.Dimension != v.cfg.Embedding.Dimension {
			return NewValidationError("collection", name, "dimension",
				fmt.Errorf("%w: collection dimension %d does not match embedding dimension %d", ErrInvalidValue, cc.Dimension, v.cfg.Embedding.Dimension))
		}
	}
	return nil
}

func (v *Validator) validateWorkflow() error {
	w := v.cfg.Workflow
	if w == nil {
		return NewValidationError("workflow", "", "", fmt.Errorf("%w: workflow config", ErrMissingRequiredField))
	}
	if w.WorkerCount <= 0 {
		return NewValidationError("workflow", "", "worker_count", ErrInvalidValue)
	}
	if w.DefaultRetryPolicy != nil && w.DefaultRetryPolicy.MaxAttempts <= 0 {
		return NewValidationError("workflow", "", "default_retry_policy.max_attempts", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateSchedules() error {
	seen := make(map[string]bool, len(v.cfg.Schedules))
	for _, s := range v.cfg.Schedules {
		if s.ID == "" {
			return NewValidationError("schedule", "", "id", ErrMissingRequiredField)
		}
		if seen[s.ID] {
			return NewValidationError("schedule", s.ID, "id", fmt.Errorf("%w: duplicate schedule id", ErrInvalidValue))
		}
		seen[s.ID] = true
		if s.CronExpression == "" {
			return NewValidationError("schedule", s.ID, "cron_expression", ErrMissingRequiredField)
		}
		switch s.OverlapPolicy {
		case "", OverlapSkip, OverlapBufferOne, OverlapAllowAll:
		default:
			return NewValidationError("schedule", s.ID, "overlap_policy", ErrInvalidValue)
		}
	}
	return nil
}
