// SPDX-License-Identifier: MIT

package decision

import (
	"fmt"
	"strings"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/media"
)

// remuxForCompat lists containers that are repackaged rather than rejected
// when the client declares a common target.
var remuxForCompat = map[string]bool{
	media.ContainerMKV: true,
	media.ContainerAVI: true,
	media.ContainerTS:  true,
	media.ContainerMOV: true,
	media.ContainerFLV: true,
	media.ContainerWMV: true,
}

var encodableVideo = map[string]bool{
	media.CodecH264: true,
	media.CodecHEVC: true,
	media.CodecAV1:  true,
	media.CodecVP9:  true,
}

var encodableAudio = map[string]bool{
	media.CodecAAC:    true,
	media.CodecAC3:    true,
	media.CodecEAC3:   true,
	media.CodecMP3:    true,
	media.CodecOpus:   true,
	media.CodecFLAC:   true,
	media.CodecVorbis: true,
}

// defaultAACChannels applies when the client has no aac entry of its own.
const defaultAACChannels = 2

// Decide computes the stream plan. It is deterministic, performs no I/O and
// has a fallback for every branch, so it cannot fail.
func Decide(m media.MediaDescriptor, caps capabilities.ClientCapabilities, opts Options) StreamPlan {
	plan := StreamPlan{
		Profile:           ProfileOriginal,
		DirectPlayReasons: []string{},
		RemuxReasons:      []string{},
		TranscodeReasons:  []string{},
	}
	if opts.Profile != nil && opts.Profile.Name != "" {
		plan.Profile = opts.Profile.Name
	}

	checkContainer(&plan, m, caps)
	checkSubtitle(&plan, m, opts)
	checkVideo(&plan, m, caps, opts)
	checkAudio(&plan, m, caps, opts)
	resolveMode(&plan, opts)
	return plan
}

func checkContainer(plan *StreamPlan, m media.MediaDescriptor, caps capabilities.ClientCapabilities) {
	src := media.CanonicalContainer(m.Container)
	cd := ContainerDecision{Source: src}

	switch {
	case src != "" && caps.SupportsContainer(src):
		cd.Action = ActionCopy
		cd.Target = src
		cd.Reason = fmt.Sprintf("container %s supported by client", src)
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, cd.Reason)
	case remuxForCompat[src] && caps.SupportsContainer(media.ContainerMP4):
		cd.Action = ActionRemux
		cd.Target = media.ContainerMP4
		cd.Reason = fmt.Sprintf("container %s not supported by client; remux to mp4", src)
		plan.RemuxReasons = append(plan.RemuxReasons, cd.Reason)
	case remuxForCompat[src] && caps.SupportsHLS:
		cd.Action = ActionRemux
		cd.Target = media.ContainerTS
		cd.Reason = fmt.Sprintf("container %s not supported by client; remux to HLS transport stream", src)
		plan.RemuxReasons = append(plan.RemuxReasons, cd.Reason)
	default:
		cd.Action = ActionRemux
		cd.Target = media.ContainerTS
		cd.Reason = fmt.Sprintf("unsupported container %q; remux to HLS transport stream", src)
		plan.RemuxReasons = append(plan.RemuxReasons, cd.Reason)
	}
	plan.Container = cd
}

func checkVideo(plan *StreamPlan, m media.MediaDescriptor, caps capabilities.ClientCapabilities, opts Options) {
	v := m.PrimaryVideo()
	if v == nil {
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, "no video track")
		return
	}

	codec := media.CanonicalCodec(v.Codec)
	vd := &VideoDecision{Action: ActionCopy, TrackIndex: v.Index, SourceCodec: codec}
	plan.Video = vd

	transcode := func(target, reason string) {
		vd.Action = ActionTranscode
		if !encodableVideo[target] {
			target = media.CodecH264
		}
		vd.TargetCodec = target
		vd.Backend = opts.PreferredBackend
		vd.Reason = reason
		plan.TranscodeReasons = append(plan.TranscodeReasons, reason)
	}

	support, ok := caps.Video(codec)
	switch {
	case !ok:
		target := caps.BestVideoCodec()
		if target == "" {
			target = media.CodecH264
		}
		transcode(target, fmt.Sprintf("video codec %s not supported by client; transcode to %s", displayCodec(codec), target))
		support, _ = caps.Video(vd.TargetCodec)
	case !support.SupportsBitDepth(v.BitDepth):
		transcode(media.CodecH264, fmt.Sprintf("video bit depth %d not supported for %s; transcode to 8-bit h264", v.BitDepth, codec))
		vd.TargetBitDepth = 8
		support, _ = caps.Video(media.CodecH264)
	case exceeds(v.Width, v.Height, boundW(support, caps), boundH(support, caps, nil)):
		transcode(codec, fmt.Sprintf("video resolution %dx%d exceeds client limit %dx%d", v.Width, v.Height,
			boundW(support, caps), boundH(support, caps, nil)))
	case v.Profile != "" && len(support.Profiles) > 0 && !containsFold(support.Profiles, v.Profile):
		transcode(codec, fmt.Sprintf("video profile %q not supported for %s", v.Profile, codec))
	case opts.Profile != nil && opts.Profile.MaxHeight > 0 && v.Height > opts.Profile.MaxHeight:
		transcode(codec, fmt.Sprintf("quality profile %s limits height to %d", opts.Profile.Name, opts.Profile.MaxHeight))
	case opts.Profile != nil && opts.Profile.VideoBitrate > 0 && m.Bitrate > opts.Profile.VideoBitrate:
		transcode(codec, fmt.Sprintf("source bitrate %d exceeds quality profile %s", m.Bitrate, opts.Profile.Name))
	case opts.BurnInSubtitle != nil && plan.Subtitle.Action == ActionBurnIn:
		transcode(codec, "subtitle burn-in requires video re-encode")
	default:
		vd.Reason = fmt.Sprintf("video %s %dx%d %d-bit supported by client", codec, v.Width, v.Height, bitDepthOr8(v.BitDepth))
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, vd.Reason)
		return
	}

	if vd.TargetBitDepth == 0 {
		vd.TargetBitDepth = bitDepthOr8(v.BitDepth)
		if !support.SupportsBitDepth(vd.TargetBitDepth) {
			vd.TargetBitDepth = 8
		}
	}
	w, h := boundW(support, caps), boundH(support, caps, opts.Profile)
	if exceeds(v.Width, v.Height, w, h) {
		vd.MaxWidth, vd.MaxHeight = w, h
	}
	if opts.Profile != nil {
		vd.Bitrate = opts.Profile.VideoBitrate
	}
}

func checkAudio(plan *StreamPlan, m media.MediaDescriptor, caps capabilities.ClientCapabilities, opts Options) {
	a := m.PrimaryAudio()
	if a == nil {
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, "no audio track")
		return
	}

	codec := media.CanonicalCodec(a.Codec)
	ad := &AudioDecision{Action: ActionCopy, TrackIndex: a.Index, SourceCodec: codec, Channels: a.Channels}
	plan.Audio = ad
	if opts.Profile != nil {
		ad.Bitrate = opts.Profile.AudioBitrate
	}

	transcode := func(target string, channels int, reason string) {
		ad.Action = ActionTranscode
		if !encodableAudio[target] {
			target = media.CodecAAC
		}
		ad.TargetCodec = target
		ad.Channels = channels
		ad.Reason = reason
		plan.TranscodeReasons = append(plan.TranscodeReasons, reason)
	}

	profileMax := 0
	if opts.Profile != nil {
		profileMax = opts.Profile.MaxAudioChannels
	}

	support, ok := caps.Audio(codec)
	switch {
	case !ok:
		channels := aacChannels(caps, a.Channels, profileMax)
		transcode(media.CodecAAC, channels, fmt.Sprintf("audio codec %s not supported by client; transcode to aac %dch", displayCodec(codec), channels))
	case support.MaxChannels > 0 && a.Channels > support.MaxChannels:
		channels := capChannels(support.MaxChannels, profileMax)
		transcode(codec, channels, fmt.Sprintf("audio channels %d exceed client limit %d for %s; downmix to %dch", a.Channels, support.MaxChannels, codec, channels))
	case profileMax > 0 && a.Channels > profileMax:
		transcode(codec, profileMax, fmt.Sprintf("quality profile %s limits audio to %dch", opts.Profile.Name, profileMax))
	case a.SampleRate > 0 && len(support.SampleRates) > 0 && !containsInt(support.SampleRates, a.SampleRate):
		transcode(codec, a.Channels, fmt.Sprintf("audio sample rate %d not supported for %s", a.SampleRate, codec))
	default:
		ad.Reason = fmt.Sprintf("audio %s %dch supported by client", codec, a.Channels)
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, ad.Reason)
	}
	if ad.Action == ActionTranscode && ad.TargetCodec == media.CodecAAC && ad.Channels > 0 {
		if aac, ok := caps.Audio(media.CodecAAC); ok && aac.MaxChannels > 0 && ad.Channels > aac.MaxChannels {
			ad.Channels = aac.MaxChannels
		}
	}
}

func checkSubtitle(plan *StreamPlan, m media.MediaDescriptor, opts Options) {
	if opts.BurnInSubtitle != nil {
		for _, s := range m.Subtitles {
			if s.Index == *opts.BurnInSubtitle {
				plan.Subtitle = SubtitleDecision{
					Action:     ActionBurnIn,
					TrackIndex: s.Index,
					Codec:      s.Codec,
					Reason:     fmt.Sprintf("caller requested burn-in of subtitle track %d", s.Index),
				}
				plan.TranscodeReasons = append(plan.TranscodeReasons, plan.Subtitle.Reason)
				return
			}
		}
	}
	s := m.PrimarySubtitle()
	if s == nil {
		plan.Subtitle = SubtitleDecision{Action: ActionNone, TrackIndex: -1, Reason: "no subtitle tracks"}
		return
	}
	plan.Subtitle = SubtitleDecision{
		Action:     ActionCopy,
		TrackIndex: s.Index,
		Codec:      s.Codec,
		Reason:     fmt.Sprintf("subtitle track %d (%s) delivered for client-side rendering", s.Index, displayCodec(s.Codec)),
	}
}

func resolveMode(plan *StreamPlan, opts Options) {
	remux := plan.Container.Action == ActionRemux
	switch {
	case remux && plan.VideoCopy() && plan.AudioCopy():
		plan.Mode = ModeDirectRemux
		plan.RemuxReasons = append(plan.RemuxReasons, "all tracks copied into the target container")
	case !plan.VideoCopy() || !plan.AudioCopy():
		plan.Mode = ModeTranscode
		if plan.Container.Action == ActionCopy {
			// Transcoded output is always delivered as HLS segments.
			plan.Container.Target = media.ContainerTS
		}
	default:
		plan.Mode = ModeDirectPlay
		plan.DirectPlayReasons = append(plan.DirectPlayReasons, "container and all tracks compatible; serve source bytes")
	}

	if plan.Mode == ModeDirectPlay && opts.PreferFragmented {
		plan.Mode = ModeDirectRemux
		plan.Container.Action = ActionRemux
		plan.Container.Target = media.ContainerTS
		plan.Container.Reason = ReasonPreferFragmented
		plan.RemuxReasons = append(plan.RemuxReasons, ReasonPreferFragmented)
	}
}

// ReasonPreferFragmented marks a direct_play result forced to direct_remux by configuration.
const ReasonPreferFragmented = "prefer fragmented delivery override: direct play downgraded to remux for seek performance"

func boundW(s capabilities.VideoCodecSupport, caps capabilities.ClientCapabilities) int {
	return minPositive(s.MaxWidth, caps.MaxDisplayWidth)
}

func boundH(s capabilities.VideoCodecSupport, caps capabilities.ClientCapabilities, p *QualityProfile) int {
	h := minPositive(s.MaxHeight, caps.MaxDisplayHeight)
	if p != nil {
		h = minPositive(h, p.MaxHeight)
	}
	return h
}

func exceeds(w, h, maxW, maxH int) bool {
	return (maxW > 0 && w > maxW) || (maxH > 0 && h > maxH)
}

func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func aacChannels(caps capabilities.ClientCapabilities, src, profileMax int) int {
	limit := defaultAACChannels
	if aac, ok := caps.Audio(media.CodecAAC); ok {
		limit = aac.MaxChannels
	}
	ch := src
	if ch <= 0 {
		ch = defaultAACChannels
	}
	if limit > 0 && ch > limit {
		ch = limit
	}
	return capChannels(ch, profileMax)
}

func capChannels(ch, profileMax int) int {
	if profileMax > 0 && ch > profileMax {
		return profileMax
	}
	return ch
}

func bitDepthOr8(d int) int {
	if d <= 0 {
		return 8
	}
	return d
}

func displayCodec(c string) string {
	if c == "" {
		return "unknown"
	}
	return c
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
