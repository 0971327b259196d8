// Package topics is a small catalog of every event channel the chat core
// uses: consumer-bus topics published for presentation consumers and the
// named wire events exchanged over the push channel. Registering them in one
// place gives the CLI something to render and catches duplicate names at
// startup.
package topics

import (
	"fmt"
	"sort"
	"sync"
)

// Scope distinguishes in-process bus topics from push-channel wire events.
type Scope string

const (
	// ScopeBus marks topics delivered on the in-process consumer bus.
	ScopeBus Scope = "bus"
	// ScopeWire marks named events exchanged over the duplex connection.
	ScopeWire Scope = "wire"
)

// Config describes a single topic or wire event.
type Config struct {
	// Name is the unique topic or event name (e.g., "chat.message.upserted").
	Name string
	// Scope says which channel carries it.
	Scope Scope
	// Direction is meaningful for wire events: "inbound", "outbound" or "both".
	Direction string
	// Description is a one-line summary for the catalog listing.
	Description string
	// Example is a sample JSON payload.
	Example string
}

// Registry holds registered topics keyed by name.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]Config
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]Config)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by package-level topic
// declarations.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a topic to the registry. Registering the same name with the
// same configuration is idempotent; a conflicting re-registration fails.
func (r *Registry) Register(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("topic name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.topics[cfg.Name]; ok {
		if existing == cfg {
			return nil
		}
		return fmt.Errorf("topic %q already registered with a different configuration", cfg.Name)
	}
	r.topics[cfg.Name] = cfg
	return nil
}

// MustRegister registers the topic and panics on conflict. Topics are
// declared at package level, so a failure here is a programming error that
// should stop startup.
func (r *Registry) MustRegister(cfg Config) Config {
	if err := r.Register(cfg); err != nil {
		panic("topics: " + err.Error())
	}
	return cfg
}

// Get looks up a topic by name.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.topics[name]
	return cfg, ok
}

// List returns all registered topics sorted by name, optionally filtered by
// scope (empty scope means all).
func (r *Registry) List(scope Scope) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.topics))
	for _, cfg := range r.topics {
		if scope != "" && cfg.Scope != scope {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Define registers a topic with the default registry and returns its config.
func Define(cfg Config) Config {
	return defaultRegistry.MustRegister(cfg)
}
