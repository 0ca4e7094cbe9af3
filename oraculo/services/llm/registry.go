package llm

import (
	"slices"
	"sync"

	"oraculo/oraculo/types"
	apperrors "oraculo/oraculo/utils/errors"
)

const (
	ProviderGroq      = "Groq"
	ProviderGemini    = "Gemini"
	ProviderOpenAI    = "OpenAI"
	ProviderAnthropic = "Anthropic"
	ProviderOllama    = "Ollama"
)

type ProviderSpec struct {
	Name        string
	Models      []string
	BaseURL     string
	RequiresKey bool
	New         Factory
}

func (s ProviderSpec) supports(model string) bool {
	return slices.Contains(s.Models, model)
}

// Registry maps provider names to their models and backend factory.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ProviderSpec
	order []string
}

func NewRegistry(specs ...ProviderSpec) *Registry {
	r := &Registry{specs: make(map[string]ProviderSpec)}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns the built-in providers.
func DefaultRegistry(ollamaBaseURL string) *Registry {
	return NewRegistry(
		ProviderSpec{
			Name:        ProviderGroq,
			Models:      []string{"llama-3.1-8b-instant", "llama-3.3-70b-versatile", "openai/gpt-oss-120b", "openai/gpt-oss-20b"},
			BaseURL:     GroqBaseURL,
			RequiresKey: true,
			New:         NewGroqClient,
		},
		ProviderSpec{
			Name:        ProviderGemini,
			Models:      []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.5-flash-lite"},
			RequiresKey: true,
			New:         NewGeminiClient,
		},
		ProviderSpec{
			Name:        ProviderOpenAI,
			Models:      []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"},
			BaseURL:     OpenAIBaseURL,
			RequiresKey: true,
			New:         NewGPTClient,
		},
		ProviderSpec{
			Name:        ProviderAnthropic,
			Models:      []string{"claude-sonnet-4-0", "claude-3-5-haiku-latest"},
			RequiresKey: true,
			New:         NewAnthropicClient,
		},
		ProviderSpec{
			Name:    ProviderOllama,
			Models:  []string{"llama3:8b", "gpt-oss:120b-cloud"},
			BaseURL: ollamaBaseURL,
			New:     NewOllamaClient,
		},
	)
}

// Register adds or replaces a provider.
func (r *Registry) Register(spec ProviderSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[spec.Name]; !ok {
		r.order = append(r.order, spec.Name)
	}
	spec.Models = slices.Clone(spec.Models)
	r.specs[spec.Name] = spec
}

// Override replaces the model list and/or endpoint of a known provider.
// It reports false when the provider is not registered.
func (r *Registry) Override(name string, models []string, baseURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[name]
	if !ok {
		return false
	}
	if len(models) > 0 {
		spec.Models = slices.Clone(models)
	}
	if baseURL != "" {
		spec.BaseURL = baseURL
	}
	r.specs[name] = spec
	return true
}

// Lookup validates provider and model without touching the network.
func (r *Registry) Lookup(provider, model string) (ProviderSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[provider]
	if !ok {
		return ProviderSpec{}, apperrors.UnsupportedProvider(provider)
	}
	if !spec.supports(model) {
		return ProviderSpec{}, apperrors.UnsupportedModel(provider, model)
	}
	return spec, nil
}

func (r *Registry) Providers() []types.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProviderInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, types.ProviderInfo{Name: name, Models: slices.Clone(r.specs[name].Models)})
	}
	return out
}
