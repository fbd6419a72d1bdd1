package connectors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, connector, content string) string {
	t.Helper()
	connectorDir := filepath.Join(dir, connector)
	require.NoError(t, os.MkdirAll(connectorDir, 0755))
	path := filepath.Join(connectorDir, "connector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConnectorMetadata(t *testing.T) {
	dir := t.TempDir()

	t.Run("full manifest", func(t *testing.T) {
		path := writeManifest(t, dir, "gmail", `
name: gmail
description: Google Mail ingestion
owner: platform
version: "1.2.0"
schema_version: v1
capabilities:
  - ingest
  - oauth
default_config:
  poll_interval: 60
settings_schema_path: schemas/gmail.json
`)
		meta, err := LoadConnectorMetadata(path)
		require.NoError(t, err)
		assert.Equal(t, "gmail", meta.Name)
		assert.Equal(t, "1.2.0", meta.Version)
		assert.Equal(t, []string{"ingest", "oauth"}, meta.Capabilities)
		assert.Equal(t, 60, meta.DefaultConfig["poll_interval"])
	})

	t.Run("schema version defaults to v1", func(t *testing.T) {
		path := writeManifest(t, dir, "slack", "name: slack\nversion: \"0.1.0\"\n")
		meta, err := LoadConnectorMetadata(path)
		require.NoError(t, err)
		assert.Equal(t, "v1", meta.SchemaVersion)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		path := writeManifest(t, dir, "typo", "name: typo\nversion: \"1.0\"\nverison: oops\n")
		_, err := LoadConnectorMetadata(path)
		assert.Error(t, err)
	})

	t.Run("missing name rejected", func(t *testing.T) {
		path := writeManifest(t, dir, "anon", "version: \"1.0\"\n")
		_, err := LoadConnectorMetadata(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("missing version rejected", func(t *testing.T) {
		path := writeManifest(t, dir, "unversioned", "name: unversioned\n")
		_, err := LoadConnectorMetadata(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version")
	})
}

func TestDiscoverConnectors(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "gmail", "name: gmail\nversion: \"1.0\"\n")
	writeManifest(t, dir, "slack", "name: slack\nversion: \"1.0\"\n")
	writeManifest(t, dir, "broken", "name: [\n")
	// A directory without a manifest is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))

	found, err := DiscoverConnectors(dir)
	require.NoError(t, err)
	assert.Len(t, found, 2, "broken and empty entries skipped")
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&ConnectorMetadata{Name: "slack", Version: "1.0"}))
	require.NoError(t, registry.Register(&ConnectorMetadata{Name: "gmail", Version: "1.0"}))

	t.Run("duplicate rejected", func(t *testing.T) {
		assert.Error(t, registry.Register(&ConnectorMetadata{Name: "gmail", Version: "2.0"}))
	})

	t.Run("lookup", func(t *testing.T) {
		meta, ok := registry.Get("gmail")
		require.True(t, ok)
		assert.Equal(t, "1.0", meta.Version)

		_, ok = registry.Get("teams")
		assert.False(t, ok)
	})

	t.Run("list is sorted by name", func(t *testing.T) {
		list := registry.List()
		require.Len(t, list, 2)
		assert.Equal(t, "gmail", list[0].Name)
		assert.Equal(t, "slack", list[1].Name)
	})

	assert.Equal(t, 2, registry.Count())
}
