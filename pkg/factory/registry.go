package factory

import (
	"sync"

	"github.com/modelgate/modelgate/pkg/llm"
)

// TransportConstructor creates a provider transport for a model entry. The
// returned value must implement llm.CompletionStreamer, llm.ChatStreamer,
// or both; CreateLLM wires whichever interfaces it satisfies.
type TransportConstructor func(cfg llm.ModelConfig) (llm.Transport, error)

// transportRegistry holds all registered transport constructors
type transportRegistry struct {
	mu         sync.RWMutex
	transports map[string]TransportConstructor
}

var globalRegistry = &transportRegistry{
	transports: make(map[string]TransportConstructor),
}

// RegisterTransport registers a transport constructor under a provider name
func RegisterTransport(name string, constructor TransportConstructor) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.transports[name] = constructor
}

// GetTransport returns a transport constructor by provider name
func GetTransport(name string) (TransportConstructor, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	constructor, exists := globalRegistry.transports[name]
	return constructor, exists
}

// ListProviders returns all registered provider names
func ListProviders() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	names := make([]string, 0, len(globalRegistry.transports))
	for name := range globalRegistry.transports {
		names = append(names, name)
	}
	return names
}
