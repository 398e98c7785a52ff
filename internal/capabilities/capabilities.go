// SPDX-License-Identifier: MIT

// Package capabilities stores what each client declared it can decode.
package capabilities

import (
	"sort"
	"strings"

	"github.com/aleczinn/loki-sub000/internal/media"
)

// ClientCapabilities is the last-declared capability document of one client.
type ClientCapabilities struct {
	Containers            []string                     `json:"containers"`
	VideoCodecs           map[string]VideoCodecSupport `json:"videoCodecs"`
	AudioCodecs           map[string]AudioCodecSupport `json:"audioCodecs"`
	Subtitles             SubtitleSupport              `json:"subtitles"`
	SupportsHLS           bool                         `json:"supportsHls"`
	SupportsFragmentedMP4 bool                         `json:"supportsFragmentedMp4"`
	MaxDisplayWidth       int                          `json:"maxDisplayWidth,omitempty"`
	MaxDisplayHeight      int                          `json:"maxDisplayHeight,omitempty"`
	DeviceType            string                       `json:"deviceType,omitempty"`
}

// VideoCodecSupport bounds one decodable video codec. Zero dimensions mean unlimited.
type VideoCodecSupport struct {
	Profiles  []string `json:"profiles,omitempty"`
	MaxWidth  int      `json:"maxWidth,omitempty"`
	MaxHeight int      `json:"maxHeight,omitempty"`
	BitDepths []int    `json:"bitDepths,omitempty"`
}

// AudioCodecSupport bounds one decodable audio codec. Zero channels means unlimited.
type AudioCodecSupport struct {
	MaxChannels int   `json:"maxChannels,omitempty"`
	SampleRates []int `json:"sampleRates,omitempty"`
}

// SubtitleSupport splits subtitle formats into client-rendered and burn-in-only.
type SubtitleSupport struct {
	Native []string `json:"native,omitempty"`
	BurnIn []string `json:"burnIn,omitempty"`
}

// SupportsContainer reports whether the canonical container is declared.
func (c ClientCapabilities) SupportsContainer(container string) bool {
	want := media.CanonicalContainer(container)
	for _, have := range c.Containers {
		if have == want {
			return true
		}
	}
	return false
}

// Video returns the support entry for a video codec in any naming variant.
func (c ClientCapabilities) Video(codec string) (VideoCodecSupport, bool) {
	s, ok := c.VideoCodecs[media.CanonicalCodec(codec)]
	return s, ok
}

// Audio returns the support entry for an audio codec in any naming variant.
func (c ClientCapabilities) Audio(codec string) (AudioCodecSupport, bool) {
	s, ok := c.AudioCodecs[media.CanonicalCodec(codec)]
	return s, ok
}

// BestVideoCodec prefers h264, then the first declared codec in sorted order.
// It returns "" when the client declared no video codec.
func (c ClientCapabilities) BestVideoCodec() string {
	if _, ok := c.VideoCodecs[media.CodecH264]; ok {
		return media.CodecH264
	}
	keys := sortedKeys(c.VideoCodecs)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// SupportsBitDepth reports whether depth is decodable. An empty set means 8-bit only.
func (s VideoCodecSupport) SupportsBitDepth(depth int) bool {
	if depth <= 0 {
		depth = 8
	}
	if len(s.BitDepths) == 0 {
		return depth == 8
	}
	for _, d := range s.BitDepths {
		if d == depth {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c ClientCapabilities) Clone() ClientCapabilities {
	out := c
	out.Containers = append([]string(nil), c.Containers...)
	out.Subtitles = SubtitleSupport{
		Native: append([]string(nil), c.Subtitles.Native...),
		BurnIn: append([]string(nil), c.Subtitles.BurnIn...),
	}
	if c.VideoCodecs != nil {
		out.VideoCodecs = make(map[string]VideoCodecSupport, len(c.VideoCodecs))
		for k, v := range c.VideoCodecs {
			v.Profiles = append([]string(nil), v.Profiles...)
			v.BitDepths = append([]int(nil), v.BitDepths...)
			out.VideoCodecs[k] = v
		}
	}
	if c.AudioCodecs != nil {
		out.AudioCodecs = make(map[string]AudioCodecSupport, len(c.AudioCodecs))
		for k, v := range c.AudioCodecs {
			v.SampleRates = append([]int(nil), v.SampleRates...)
			out.AudioCodecs[k] = v
		}
	}
	return out
}

// Canonicalize normalizes a capability set to a deterministic form:
// tokens trimmed and lower-cased, codec and container names canonical,
// sets deduped and sorted, nil collections replaced by empty ones.
func Canonicalize(in ClientCapabilities) ClientCapabilities {
	out := in.Clone()
	out.Containers = canonicalSet(in.Containers, media.CanonicalContainer)
	out.Subtitles.Native = canonicalSet(in.Subtitles.Native, media.CanonicalCodec)
	out.Subtitles.BurnIn = canonicalSet(in.Subtitles.BurnIn, media.CanonicalCodec)
	out.DeviceType = strings.ToLower(strings.TrimSpace(in.DeviceType))

	out.VideoCodecs = make(map[string]VideoCodecSupport, len(in.VideoCodecs))
	for name, s := range in.VideoCodecs {
		key := media.CanonicalCodec(name)
		if key == "" {
			continue
		}
		s.Profiles = canonicalSet(s.Profiles, lowerTrim)
		s.BitDepths = canonicalInts(s.BitDepths)
		out.VideoCodecs[key] = s
	}
	out.AudioCodecs = make(map[string]AudioCodecSupport, len(in.AudioCodecs))
	for name, s := range in.AudioCodecs {
		key := media.CanonicalCodec(name)
		if key == "" {
			continue
		}
		s.SampleRates = canonicalInts(s.SampleRates)
		out.AudioCodecs[key] = s
	}
	return out
}

func lowerTrim(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func canonicalSet(in []string, canon func(string) string) []string {
	m := make(map[string]struct{}, len(in))
	for _, raw := range in {
		if t := canon(raw); t != "" {
			m[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func canonicalInts(in []int) []int {
	m := make(map[int]struct{}, len(in))
	for _, v := range in {
		if v > 0 {
			m[v] = struct{}{}
		}
	}
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
