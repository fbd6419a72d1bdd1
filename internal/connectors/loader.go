package connectors

import (
	"encoding/json"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InitConnectors discovers connectors from the specified directory,
// syncs their metadata to the database, and returns a populated registry.
//
// This function is called at application startup to:
// 1. Discover all connectors from the connector directory
// 2. Sync discovered connector metadata to the database (upsert pattern)
// 3. Return the in-memory registry for use by the application
//
// Non-fatal: logs warnings but does not fail if individual connectors have issues.
func InitConnectors(db *gorm.DB, connectorDir string) (*Registry, error) {
	registry, err := LoadRegistry(connectorDir)
	if err != nil {
		return nil, err
	}

	log.Printf("Discovered %d connector(s) from %s", registry.Count(), connectorDir)

	for _, meta := range registry.List() {
		if err := syncConnectorToDB(db, meta); err != nil {
			log.Printf("Warning: failed to sync connector %s to database: %v", meta.Name, err)
			continue
		}
		log.Printf("Synced connector to database: %s (version %s)", meta.Name, meta.Version)
	}

	return registry, nil
}

// syncConnectorToDB persists or updates a connector's metadata in the database.
// Uses an upsert pattern: creates if new, updates if already exists.
func syncConnectorToDB(db *gorm.DB, meta *ConnectorMetadata) error {
	capabilitiesJSON, err := json.Marshal(meta.Capabilities)
	if err != nil {
		return err
	}

	defaultConfigJSON, err := json.Marshal(meta.DefaultConfig)
	if err != nil {
		return err
	}

	var dbConnector Connector
	result := db.Where("name = ?", meta.Name).First(&dbConnector)

	if result.Error == gorm.ErrRecordNotFound {
		// Connector doesn't exist - create new record
		dbConnector = Connector{
			Name:               meta.Name,
			Description:        meta.Description,
			Owner:              meta.Owner,
			Version:            meta.Version,
			SchemaVersion:      meta.SchemaVersion,
			Capabilities:       datatypes.JSON(capabilitiesJSON),
			DefaultConfig:      datatypes.JSON(defaultConfigJSON),
			SettingsSchemaPath: meta.SettingsSchemaPath,
			Enabled:            true,
		}
		return db.Create(&dbConnector).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Connector exists - update its metadata
	updates := map[string]interface{}{
		"description":          meta.Description,
		"owner":                meta.Owner,
		"version":              meta.Version,
		"schema_version":       meta.SchemaVersion,
		"capabilities":         datatypes.JSON(capabilitiesJSON),
		"default_config":       datatypes.JSON(defaultConfigJSON),
		"settings_schema_path": meta.SettingsSchemaPath,
	}

	return db.Model(&dbConnector).Updates(updates).Error
}
