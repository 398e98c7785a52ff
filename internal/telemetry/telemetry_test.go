// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/sessions/{id}/index.m3u8", "/api/v1/sessions/abc/index.m3u8", 200)
	require.Len(t, attrs, 4)

	v, ok := findAttr(attrs, HTTPStatusCodeKey)
	require.True(t, ok)
	assert.Equal(t, int64(200), v.AsInt64())
}

func TestSegmentAttributes_SkipsEmptyIDs(t *testing.T) {
	attrs := SegmentAttributes("", "", 3, 18)
	assert.Len(t, attrs, 2)

	attrs = SegmentAttributes("sess", "media", 3, 18)
	assert.Len(t, attrs, 4)
	v, ok := findAttr(attrs, SegmentIndexKey)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}
