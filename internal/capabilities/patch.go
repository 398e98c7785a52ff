// SPDX-License-Identifier: MIT

package capabilities

import "github.com/aleczinn/loki-sub000/internal/media"

// Patch is a partial capability declaration. Nil fields are unspecified and
// leave the stored value untouched.
type Patch struct {
	Containers            []string                      `json:"containers,omitempty"`
	VideoCodecs           map[string]*VideoCodecSupport `json:"videoCodecs,omitempty"`
	AudioCodecs           map[string]*AudioCodecSupport `json:"audioCodecs,omitempty"`
	Subtitles             *SubtitlePatch                `json:"subtitles,omitempty"`
	SupportsHLS           *bool                         `json:"supportsHls,omitempty"`
	SupportsFragmentedMP4 *bool                         `json:"supportsFragmentedMp4,omitempty"`
	MaxDisplayWidth       *int                          `json:"maxDisplayWidth,omitempty"`
	MaxDisplayHeight      *int                          `json:"maxDisplayHeight,omitempty"`
	DeviceType            *string                       `json:"deviceType,omitempty"`
}

// SubtitlePatch updates subtitle format lists independently.
type SubtitlePatch struct {
	Native []string `json:"native,omitempty"`
	BurnIn []string `json:"burnIn,omitempty"`
}

// PatchFrom turns a complete document into a patch that sets every field.
func PatchFrom(c ClientCapabilities) Patch {
	p := Patch{
		Containers:            append([]string{}, c.Containers...),
		VideoCodecs:           make(map[string]*VideoCodecSupport, len(c.VideoCodecs)),
		AudioCodecs:           make(map[string]*AudioCodecSupport, len(c.AudioCodecs)),
		Subtitles:             &SubtitlePatch{Native: append([]string{}, c.Subtitles.Native...), BurnIn: append([]string{}, c.Subtitles.BurnIn...)},
		SupportsHLS:           &c.SupportsHLS,
		SupportsFragmentedMP4: &c.SupportsFragmentedMP4,
		MaxDisplayWidth:       &c.MaxDisplayWidth,
		MaxDisplayHeight:      &c.MaxDisplayHeight,
		DeviceType:            &c.DeviceType,
	}
	for k, v := range c.VideoCodecs {
		v := v
		p.VideoCodecs[k] = &v
	}
	for k, v := range c.AudioCodecs {
		v := v
		p.AudioCodecs[k] = &v
	}
	return p
}

// Apply merges p into c. Named fields overwrite, unnamed fields are retained.
// A codec entry replaces that codec's stored entry; a null entry removes it.
func (c ClientCapabilities) Apply(p Patch) ClientCapabilities {
	out := c.Clone()
	if p.Containers != nil {
		out.Containers = append([]string(nil), p.Containers...)
	}
	if p.VideoCodecs != nil {
		if out.VideoCodecs == nil {
			out.VideoCodecs = make(map[string]VideoCodecSupport)
		}
		for name, s := range p.VideoCodecs {
			key := media.CanonicalCodec(name)
			if s == nil {
				delete(out.VideoCodecs, key)
				continue
			}
			out.VideoCodecs[key] = *s
		}
	}
	if p.AudioCodecs != nil {
		if out.AudioCodecs == nil {
			out.AudioCodecs = make(map[string]AudioCodecSupport)
		}
		for name, s := range p.AudioCodecs {
			key := media.CanonicalCodec(name)
			if s == nil {
				delete(out.AudioCodecs, key)
				continue
			}
			out.AudioCodecs[key] = *s
		}
	}
	if p.Subtitles != nil {
		if p.Subtitles.Native != nil {
			out.Subtitles.Native = append([]string(nil), p.Subtitles.Native...)
		}
		if p.Subtitles.BurnIn != nil {
			out.Subtitles.BurnIn = append([]string(nil), p.Subtitles.BurnIn...)
		}
	}
	if p.SupportsHLS != nil {
		out.SupportsHLS = *p.SupportsHLS
	}
	if p.SupportsFragmentedMP4 != nil {
		out.SupportsFragmentedMP4 = *p.SupportsFragmentedMP4
	}
	if p.MaxDisplayWidth != nil {
		out.MaxDisplayWidth = *p.MaxDisplayWidth
	}
	if p.MaxDisplayHeight != nil {
		out.MaxDisplayHeight = *p.MaxDisplayHeight
	}
	if p.DeviceType != nil {
		out.DeviceType = *p.DeviceType
	}
	return Canonicalize(out)
}
