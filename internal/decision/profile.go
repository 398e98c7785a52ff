// SPDX-License-Identifier: MIT

package decision

import "strings"

// QualityProfile bounds the output of a transcode.
type QualityProfile struct {
	Name             string `json:"name"`
	MaxHeight        int    `json:"maxHeight,omitempty"`
	VideoBitrate     int64  `json:"videoBitrate,omitempty"` // bits/s
	MaxAudioChannels int    `json:"maxAudioChannels,omitempty"`
	AudioBitrate     int64  `json:"audioBitrate,omitempty"` // bits/s
	Tier             string `json:"tier"`                   // high|balanced|fast
}

// ProfileOriginal keeps the source quality.
const ProfileOriginal = "original"

// Profiles is the table of built-in quality profiles.
var Profiles = map[string]QualityProfile{
	ProfileOriginal: {Name: ProfileOriginal, Tier: "high"},
	"1080p":         {Name: "1080p", MaxHeight: 1080, VideoBitrate: 8_000_000, AudioBitrate: 192_000, Tier: "balanced"},
	"720p":          {Name: "720p", MaxHeight: 720, VideoBitrate: 4_000_000, AudioBitrate: 160_000, Tier: "balanced"},
	"480p":          {Name: "480p", MaxHeight: 480, VideoBitrate: 1_500_000, MaxAudioChannels: 2, AudioBitrate: 128_000, Tier: "fast"},
	"audio-stereo":  {Name: "audio-stereo", MaxAudioChannels: 2, AudioBitrate: 192_000, Tier: "high"},
}

// LookupProfile resolves a profile by name. The empty name is "original".
func LookupProfile(name string) (QualityProfile, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = ProfileOriginal
	}
	p, ok := Profiles[n]
	return p, ok
}
