// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Playback attributes
	SessionIDKey    = "playback.session_id"
	MediaIDKey      = "playback.media_id"
	PlanModeKey     = "playback.mode"
	SegmentIndexKey = "segment.index"
	SegmentStartKey = "segment.start_seconds"

	// Transcoding attributes
	TranscodeBackendKey     = "transcode.backend"
	TranscodeEncoderKey     = "transcode.encoder"
	TranscodeInputCodecKey  = "transcode.input_codec"
	TranscodeOutputCodecKey = "transcode.output_codec"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SegmentAttributes creates span attributes for one segment encode.
func SegmentAttributes(sessionID, mediaID string, index int, start float64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if mediaID != "" {
		attrs = append(attrs, attribute.String(MediaIDKey, mediaID))
	}
	return append(attrs,
		attribute.Int(SegmentIndexKey, index),
		attribute.Float64(SegmentStartKey, start),
	)
}

// TranscodeAttributes creates transcoding-related span attributes.
func TranscodeAttributes(inputCodec, outputCodec, backend, encoder string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeInputCodecKey, inputCodec),
		attribute.String(TranscodeOutputCodecKey, outputCodec),
		attribute.String(TranscodeBackendKey, backend),
		attribute.String(TranscodeEncoderKey, encoder),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
