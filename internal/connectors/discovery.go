package connectors

import (
	"log"
	"os"
	"path/filepath"
)

// DiscoverConnectors scans the specified directory for connector
// subdirectories containing connector.yaml manifest files. Invalid
// connectors are logged and skipped (not fatal) to allow partial
// discovery.
//
// Returns all successfully loaded connector metadata.
func DiscoverConnectors(connectorDir string) ([]*ConnectorMetadata, error) {
	var found []*ConnectorMetadata

	// List all entries in the connector directory
	entries, err := os.ReadDir(connectorDir)
	if err != nil {
		return nil, err
	}

	// Scan each subdirectory for connector.yaml
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(connectorDir, entry.Name(), "connector.yaml")

		// Check if connector.yaml exists
		if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
			continue // Skip directories without connector.yaml
		}

		// Attempt to load connector metadata
		meta, err := LoadConnectorMetadata(manifestPath)
		if err != nil {
			log.Printf("Warning: failed to load connector from %s: %v", entry.Name(), err)
			continue // Log and skip invalid connectors
		}

		found = append(found, meta)
	}

	return found, nil
}
