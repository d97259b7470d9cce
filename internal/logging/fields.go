package logging

// Standardized structured logging keys.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"

	FieldObjectID   = "object_id"
	FieldProperty   = "property"
	FieldTrackCount = "track_count"
	FieldKeyframes  = "keyframe_count"
	FieldArchive    = "archive"
	FieldSideFile   = "side_file"
	FieldBytes      = "bytes"
	FieldOperation  = "operation"
)
