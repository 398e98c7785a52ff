// SPDX-License-Identifier: MIT

package capabilities

import (
	"strings"

	"github.com/aleczinn/loki-sub000/internal/media"
)

// Device type identifiers of the built-in default table.
const (
	DeviceGeneric = "generic"
	DeviceSafari  = "safari"
	DeviceChrome  = "chrome"
	DeviceFirefox = "firefox"
	DeviceAndroid = "android"
	DeviceTV      = "tv"
)

var (
	h264HD   = VideoCodecSupport{Profiles: []string{"baseline", "main", "high"}, MaxWidth: 1920, MaxHeight: 1080, BitDepths: []int{8}}
	h264UHD  = VideoCodecSupport{Profiles: []string{"baseline", "main", "high"}, MaxWidth: 3840, MaxHeight: 2160, BitDepths: []int{8}}
	hevcUHD  = VideoCodecSupport{Profiles: []string{"main", "main 10"}, MaxWidth: 3840, MaxHeight: 2160, BitDepths: []int{8, 10}}
	vp9UHD   = VideoCodecSupport{MaxWidth: 3840, MaxHeight: 2160, BitDepths: []int{8, 10}}
	av1UHD   = VideoCodecSupport{MaxWidth: 3840, MaxHeight: 2160, BitDepths: []int{8, 10}}
	stereo   = AudioCodecSupport{MaxChannels: 2, SampleRates: []int{44100, 48000}}
	surround = AudioCodecSupport{MaxChannels: 6, SampleRates: []int{44100, 48000}}
)

// deviceDefaults is the data table of capability facts per device family.
// Selection is a lookup by device type; nothing here inspects user agents.
var deviceDefaults = map[string]ClientCapabilities{
	DeviceGeneric: {
		Containers:  []string{media.ContainerMP4, media.ContainerTS},
		VideoCodecs: map[string]VideoCodecSupport{media.CodecH264: h264HD},
		AudioCodecs: map[string]AudioCodecSupport{media.CodecAAC: stereo, media.CodecMP3: stereo},
		Subtitles:   SubtitleSupport{Native: []string{"webvtt"}, BurnIn: []string{"pgs", "dvdsub", "ass"}},
		SupportsHLS: true,
	},
	DeviceSafari: {
		Containers: []string{media.ContainerMP4, media.ContainerMOV, media.ContainerTS},
		VideoCodecs: map[string]VideoCodecSupport{
			media.CodecH264: h264UHD,
			media.CodecHEVC: hevcUHD,
		},
		AudioCodecs: map[string]AudioCodecSupport{
			media.CodecAAC:  stereo,
			media.CodecAC3:  surround,
			media.CodecEAC3: surround,
			media.CodecMP3:  stereo,
			media.CodecFLAC: stereo,
		},
		Subtitles:             SubtitleSupport{Native: []string{"webvtt", "mov_text"}, BurnIn: []string{"pgs", "dvdsub", "ass"}},
		SupportsHLS:           true,
		SupportsFragmentedMP4: true,
	},
	DeviceChrome: {
		Containers: []string{media.ContainerMP4, media.ContainerWebM},
		VideoCodecs: map[string]VideoCodecSupport{
			media.CodecH264: h264UHD,
			media.CodecVP9:  vp9UHD,
			media.CodecAV1:  av1UHD,
			media.CodecVP8:  {MaxWidth: 1920, MaxHeight: 1080, BitDepths: []int{8}},
		},
		AudioCodecs: map[string]AudioCodecSupport{
			media.CodecAAC:    stereo,
			media.CodecOpus:   surround,
			media.CodecVorbis: stereo,
			media.CodecMP3:    stereo,
			media.CodecFLAC:   stereo,
		},
		Subtitles:             SubtitleSupport{Native: []string{"webvtt"}, BurnIn: []string{"pgs", "dvdsub", "ass"}},
		SupportsFragmentedMP4: true,
	},
	DeviceFirefox: {
		Containers: []string{media.ContainerMP4, media.ContainerWebM},
		VideoCodecs: map[string]VideoCodecSupport{
			media.CodecH264: h264HD,
			media.CodecVP9:  vp9UHD,
			media.CodecAV1:  av1UHD,
		},
		AudioCodecs: map[string]AudioCodecSupport{
			media.CodecAAC:    stereo,
			media.CodecOpus:   surround,
			media.CodecVorbis: stereo,
			media.CodecMP3:    stereo,
			media.CodecFLAC:   stereo,
		},
		Subtitles:             SubtitleSupport{Native: []string{"webvtt"}, BurnIn: []string{"pgs", "dvdsub", "ass"}},
		SupportsFragmentedMP4: true,
	},
	DeviceAndroid: {
		Containers: []string{media.ContainerMP4, media.ContainerMKV, media.ContainerWebM, media.ContainerTS},
		VideoCodecs: map[string]VideoCodecSupport{
			media.CodecH264: h264HD,
			media.CodecHEVC: {Profiles: []string{"main"}, MaxWidth: 1920, MaxHeight: 1080, BitDepths: []int{8}},
			media.CodecVP9:  {MaxWidth: 1920, MaxHeight: 1080, BitDepths: []int{8}},
		},
		AudioCodecs: map[string]AudioCodecSupport{
			media.CodecAAC:  stereo,
			media.CodecOpus: stereo,
			media.CodecMP3:  stereo,
		},
		Subtitles:   SubtitleSupport{Native: []string{"subrip", "webvtt"}, BurnIn: []string{"pgs", "dvdsub"}},
		SupportsHLS: true,
	},
	DeviceTV: {
		Containers: []string{media.ContainerMP4, media.ContainerMKV, media.ContainerTS},
		VideoCodecs: map[string]VideoCodecSupport{
			media.CodecH264: h264UHD,
			media.CodecHEVC: hevcUHD,
		},
		AudioCodecs: map[string]AudioCodecSupport{
			media.CodecAAC:  surround,
			media.CodecAC3:  surround,
			media.CodecEAC3: {MaxChannels: 8, SampleRates: []int{48000}},
			media.CodecMP3:  stereo,
		},
		Subtitles:        SubtitleSupport{Native: []string{"subrip"}, BurnIn: []string{"pgs", "dvdsub", "ass"}},
		SupportsHLS:      true,
		MaxDisplayWidth:  3840,
		MaxDisplayHeight: 2160,
	},
}

// Defaults returns the canonical default capability set for a device type.
func Defaults(deviceType string) (ClientCapabilities, bool) {
	dt := strings.ToLower(strings.TrimSpace(deviceType))
	caps, ok := deviceDefaults[dt]
	if !ok {
		return ClientCapabilities{}, false
	}
	caps.DeviceType = dt
	return Canonicalize(caps), true
}

// DeviceTypes lists the device types of the default table in sorted order.
func DeviceTypes() []string {
	return sortedKeys(deviceDefaults)
}
