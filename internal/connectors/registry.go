package connectors

import (
	"fmt"
	"log"
	"sort"
)

// Registry holds discovered connectors in memory, indexed by name.
// Provides methods for registration, lookup, and listing.
type Registry struct {
	connectors map[string]*ConnectorMetadata
}

// NewRegistry creates a new empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]*ConnectorMetadata),
	}
}

// Register adds a connector to the registry.
// Returns an error if a connector with the same name is already registered.
func (r *Registry) Register(meta *ConnectorMetadata) error {
	if _, exists := r.connectors[meta.Name]; exists {
		return fmt.Errorf("connector already registered: %s", meta.Name)
	}
	r.connectors[meta.Name] = meta
	return nil
}

// Get retrieves a connector by name.
// Returns the connector metadata and a boolean indicating if it was found.
func (r *Registry) Get(name string) (*ConnectorMetadata, bool) {
	meta, ok := r.connectors[name]
	return meta, ok
}

// List returns all registered connectors as a slice, sorted by name
// for deterministic ordering.
func (r *Registry) List() []*ConnectorMetadata {
	list := make([]*ConnectorMetadata, 0, len(r.connectors))
	for _, meta := range r.connectors {
		list = append(list, meta)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// Count returns the number of registered connectors.
func (r *Registry) Count() int {
	return len(r.connectors)
}

// LoadRegistry is a convenience function that discovers connectors from
// the specified directory and registers them in a new Registry.
//
// Duplicate connector names are logged and skipped. An empty registry
// is not an error (no connectors found is valid).
func LoadRegistry(connectorDir string) (*Registry, error) {
	discovered, err := DiscoverConnectors(connectorDir)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	for _, meta := range discovered {
		if err := registry.Register(meta); err != nil {
			log.Printf("Warning: duplicate connector name, skipping %s: %v", meta.Name, err)
			continue
		}
	}

	return registry, nil
}
