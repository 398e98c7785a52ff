// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldMediaID   = "media_id"
	FieldToken     = "client_token"
	FieldProfile   = "profile"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSegment   = "segment"
	FieldAttempt   = "attempt"
	FieldPID       = "pid"

	// Media / stream fields
	FieldCodec     = "codec"
	FieldContainer = "container"
	FieldEncoder   = "encoder"
	FieldBackend   = "backend"
	FieldDevice    = "device"
	FieldMode      = "mode"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Timing
	FieldDurationMS = "duration_ms"

	// Path / URL fields
	FieldPath    = "path"
	FieldWorkDir = "work_dir"
)
