// SPDX-License-Identifier: MIT

package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleczinn/loki-sub000/internal/media"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
func strPtr(s string) *string {
	return &s
}

func TestCanonicalize_NormalizesTokens(t *testing.T) {
	in := ClientCapabilities{
		Containers: []string{" MP4 ", "matroska", "mp4", ""},
		VideoCodecs: map[string]VideoCodecSupport{
			"AVC":  {BitDepths: []int{10, 8, 8, 0}, Profiles: []string{"High", "main"}},
			"h265": {},
		},
		AudioCodecs: map[string]AudioCodecSupport{"mp4a": {MaxChannels: 2}},
		DeviceType:  " Safari ",
	}

	out := Canonicalize(in)

	assert.Equal(t, []string{media.ContainerMKV, media.ContainerMP4}, out.Containers)
	require.Contains(t, out.VideoCodecs, media.CodecH264)
	assert.Equal(t, []int{8, 10}, out.VideoCodecs[media.CodecH264].BitDepths)
	assert.Equal(t, []string{"high", "main"}, out.VideoCodecs[media.CodecH264].Profiles)
	assert.Contains(t, out.VideoCodecs, media.CodecHEVC)
	assert.Contains(t, out.AudioCodecs, media.CodecAAC)
	assert.Equal(t, "safari", out.DeviceType)
	assert.NotNil(t, out.Subtitles.Native)
}

func TestApply_MergesAndRetains(t *testing.T) {
	base := Canonicalize(ClientCapabilities{
		Containers:  []string{"mp4"},
		VideoCodecs: map[string]VideoCodecSupport{"h264": {MaxWidth: 1920, MaxHeight: 1080}},
		AudioCodecs: map[string]AudioCodecSupport{"aac": {MaxChannels: 2}},
		SupportsHLS: true,
	})

	merged := base.Apply(Patch{
		VideoCodecs:     map[string]*VideoCodecSupport{"hevc": {MaxWidth: 3840, MaxHeight: 2160, BitDepths: []int{8, 10}}},
		MaxDisplayWidth: intPtr(3840),
	})

	assert.Equal(t, []string{"mp4"}, merged.Containers, "unspecified fields are retained")
	assert.True(t, merged.SupportsHLS)
	assert.Contains(t, merged.VideoCodecs, "h264")
	assert.Contains(t, merged.VideoCodecs, "hevc")
	assert.Equal(t, 3840, merged.MaxDisplayWidth)

	overwritten := merged.Apply(Patch{
		Containers:  []string{"webm"},
		SupportsHLS: boolPtr(false),
		VideoCodecs: map[string]*VideoCodecSupport{"avc": {MaxWidth: 1280, MaxHeight: 720}, "hevc": nil},
	})
	assert.Equal(t, []string{"webm"}, overwritten.Containers)
	assert.False(t, overwritten.SupportsHLS)
	assert.Equal(t, 1280, overwritten.VideoCodecs["h264"].MaxWidth, "same-named codec entry is replaced")
	assert.NotContains(t, overwritten.VideoCodecs, "hevc", "null entry removes the codec")

	// base must not be mutated by Apply.
	assert.Equal(t, 1920, base.VideoCodecs["h264"].MaxWidth)
}

func TestPatchFrom_RoundTripsDocument(t *testing.T) {
	doc, ok := Defaults(DeviceChrome)
	require.True(t, ok)
	assert.Equal(t, doc, ClientCapabilities{}.Apply(PatchFrom(doc)))
}

func TestBestVideoCodec(t *testing.T) {
	caps := Canonicalize(ClientCapabilities{VideoCodecs: map[string]VideoCodecSupport{"vp9": {}, "av1": {}}})
	assert.Equal(t, "av1", caps.BestVideoCodec())

	caps = Canonicalize(ClientCapabilities{VideoCodecs: map[string]VideoCodecSupport{"vp9": {}, "h264": {}}})
	assert.Equal(t, "h264", caps.BestVideoCodec())

	assert.Equal(t, "", ClientCapabilities{}.BestVideoCodec())
}

func TestSupportsBitDepth(t *testing.T) {
	assert.True(t, VideoCodecSupport{}.SupportsBitDepth(8))
	assert.True(t, VideoCodecSupport{}.SupportsBitDepth(0), "unknown depth is treated as 8-bit")
	assert.False(t, VideoCodecSupport{}.SupportsBitDepth(10))
	assert.True(t, VideoCodecSupport{BitDepths: []int{8, 10}}.SupportsBitDepth(10))
}

func TestDefaults_Table(t *testing.T) {
	for _, dt := range DeviceTypes() {
		caps, ok := Defaults(dt)
		require.True(t, ok, dt)
		assert.Equal(t, dt, caps.DeviceType)
		assert.NotEmpty(t, caps.Containers, dt)
		assert.NotEmpty(t, caps.VideoCodecs, dt)
	}
	_, ok := Defaults("toaster")
	assert.False(t, ok)

	safari, _ := Defaults(" SAFARI ")
	assert.True(t, safari.SupportsContainer("mov"))
	_, hasHEVC := safari.Video("h265")
	assert.True(t, hasHEVC)
}

func TestApply_DeviceTypePatch(t *testing.T) {
	caps := ClientCapabilities{}.Apply(Patch{DeviceType: strPtr("TV")})
	assert.Equal(t, "tv", caps.DeviceType)
}
