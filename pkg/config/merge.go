package config

import "dario.cat/mergo"

// mergeCollections merges built-in collection schemas with user-declared
// ones; user declarations override built-in fields but built-in
// collections are never dropped outright.
func mergeCollections(builtin, user map[string]CollectionConfig) map[string]CollectionConfig {
	merged := make(map[string]CollectionConfig, len(builtin)+len(user))
	for name, cc := range builtin {
		merged[name] = cc
	}
	for name, cc := range user {
		if base, ok := merged[name]; ok {
			if err := mergo.Merge(&base, cc, mergo.WithOverride); err == nil {
				merged[name] = base
				continue
			}
		}
		merged[name] = cc
	}
	return merged
}

// mergeLLMProviders merges built-in LLM provider definitions with
// user-declared ones; user entries override built-in entries of the same
// name, new entries are added.
func mergeLLMProviders(builtin, user map[string]LLMProviderConfig) map[string]LLMProviderConfig {
	merged := make(map[string]LLMProviderConfig, len(builtin)+len(user))
	for name, p := range builtin {
		merged[name] = p
	}
	for name, p := range user {
		merged[name] = p
	}
	return merged
}
