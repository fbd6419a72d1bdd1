package connectors

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConnectorMetadata represents the parsed connector.yaml manifest file.
// All connectors must provide name and version; other fields are optional.
type ConnectorMetadata struct {
	Name               string                 `yaml:"name"`
	Description        string                 `yaml:"description"`
	Owner              string                 `yaml:"owner"`
	Version            string                 `yaml:"version"`
	SchemaVersion      string                 `yaml:"schema_version"`
	Capabilities       []string               `yaml:"capabilities"`
	DefaultConfig      map[string]interface{} `yaml:"default_config"`
	SettingsSchemaPath string                 `yaml:"settings_schema_path"`
}

// LoadConnectorMetadata reads and parses a connector.yaml file with strict validation.
// Unknown YAML fields are rejected (via KnownFields), and required fields are validated.
// SchemaVersion defaults to "v1" if not provided.
func LoadConnectorMetadata(path string) (*ConnectorMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connector metadata: %w", err)
	}

	var meta ConnectorMetadata
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // CRITICAL: Reject unknown YAML keys to catch typos

	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to parse connector metadata: %w", err)
	}

	// Set default schema version if not provided
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = "v1"
	}

	// Validate required fields
	if meta.Name == "" {
		return nil, fmt.Errorf("connector metadata missing required field: name")
	}
	if meta.Version == "" {
		return nil, fmt.Errorf("connector metadata missing required field: version")
	}

	return &meta, nil
}
