package streams

import "encoding/json"

// Stream name constants
const (
	StreamChanges = "inbox:changes"
)

// Consumer group constants
const (
	GroupDispatchers = "inbox-dispatchers"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// Change event types, mirroring the persistence layer's replication
// vocabulary.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Tables that emit change events
const (
	TableMessages      = "messages"
	TableNotifications = "notifications"
)

// ChangeEvent is one row-level change on a watched table, keyed by the
// owning user. New carries the post-image for INSERT/UPDATE, Old the
// pre-image for UPDATE/DELETE.
type ChangeEvent struct {
	EventType string          `json:"event_type"`
	Table     string          `json:"table"`
	UserID    uint            `json:"user_id"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}
