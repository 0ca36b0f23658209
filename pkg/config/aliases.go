package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases manages model alias resolution and validation. Tier blocks
// may name a model by alias ("fast", "quality") instead of the canonical
// provider model name.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}

	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}

	return &aliases, nil
}

// LoadAliasesWithFallback loads aliases from the user config dir, falling
// back to the built-in defaults if no file is found.
func LoadAliasesWithFallback() (*ModelAliases, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".turnpike", "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return LoadAliases(userPath)
		}
	}
	return DefaultAliases(), nil
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// ValidateModel checks if a model exists in the provider's list.
// Returns nil if valid, or an error describing the problem.
func (a *ModelAliases) ValidateModel(provider, model string) error {
	if a == nil || a.Providers == nil {
		return nil // No validation possible without provider info
	}

	models, ok := a.Providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}

	for _, m := range models {
		if m == model {
			return nil
		}
	}

	return fmt.Errorf("model %q not in %s provider list", model, provider)
}

// ResolveTiers rewrites tier model aliases to canonical names in place.
func (a *ModelAliases) ResolveTiers(tiers *TiersConfig) {
	if a == nil || tiers == nil {
		return
	}
	tiers.Fast.Model = a.Resolve(tiers.Fast.Model)
	tiers.Quality.Model = a.Resolve(tiers.Quality.Model)
}

// ValidateTiers checks that both tier models are valid for their providers.
// Returns a slice of validation errors (empty if all valid). Mock tiers are
// exempt: they exist for tests and offline runs.
func (a *ModelAliases) ValidateTiers(tiers TiersConfig) []error {
	if a == nil {
		return nil
	}

	var errors []error
	for name, tier := range map[string]TierConfig{"fast": tiers.Fast, "quality": tiers.Quality} {
		if tier.Provider == "mock" {
			continue
		}
		model := a.Resolve(tier.Model)
		if err := a.ValidateModel(tier.Provider, model); err != nil {
			errors = append(errors, fmt.Errorf("%s tier: %w", name, err))
		}
	}
	return errors
}

// ListAliases returns a copy of the aliases map.
func (a *ModelAliases) ListAliases() map[string]string {
	if a == nil || a.Aliases == nil {
		return make(map[string]string)
	}
	result := make(map[string]string, len(a.Aliases))
	for k, v := range a.Aliases {
		result[k] = v
	}
	return result
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// GetProviderModels returns the models for a given provider.
func (a *ModelAliases) GetProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// GetProviderForModel returns the provider name for a canonical model.
func (a *ModelAliases) GetProviderForModel(model string) string {
	if a == nil || a.Providers == nil {
		return ""
	}
	for provider, models := range a.Providers {
		for _, m := range models {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// DefaultAliases returns the default model aliases configuration.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			// Local
			"fast":       "qwen2.5:7b-instruct",
			"fast-large": "llama3.1:8b-instruct",
			// OpenAI
			"quality":      "gpt-4o-mini",
			"quality-deep": "gpt-4o",
			// Anthropic
			"careful": "claude-sonnet-4-20250514",
			// Google
			"long-context": "gemini-2.0-flash",
		},
		Providers: map[string][]string{
			"local":     {"qwen2.5:7b-instruct", "llama3.1:8b-instruct"},
			"openai":    {"gpt-4o-mini", "gpt-4o"},
			"anthropic": {"claude-sonnet-4-20250514"},
			"google":    {"gemini-2.0-flash", "gemini-2.0-pro"},
		},
	}
}
