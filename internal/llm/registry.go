package llm

import "fmt"

// ModelRoute binds a logical model to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	DisplayName string
	Temperature float64
	MaxTokens   int
}

// Registry resolves logical model names to providers and routes.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// Resolve returns the provider and route for a given model name (default if empty).
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}

	route, ok := r.models[modelName]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("model %q not registered", modelName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("provider %q not registered for model %q", route.Provider, modelName)
	}

	return p, route, nil
}
