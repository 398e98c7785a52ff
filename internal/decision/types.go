// SPDX-License-Identifier: MIT

// Package decision maps media metadata and client capabilities to a stream plan.
package decision

// Mode is the delivery mode of a stream plan.
type Mode string

const (
	ModeDirectPlay  Mode = "direct_play"
	ModeDirectRemux Mode = "direct_remux"
	ModeTranscode   Mode = "transcode"
)

// Action is the per-track outcome.
type Action string

const (
	ActionCopy      Action = "copy"
	ActionRemux     Action = "remux"
	ActionTranscode Action = "transcode"
	ActionBurnIn    Action = "burn_in"
	ActionNone      Action = "none"
)

// ContainerDecision says whether the container can be kept.
type ContainerDecision struct {
	Action Action `json:"action"`
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// VideoDecision is the outcome for the primary video track.
type VideoDecision struct {
	Action         Action `json:"action"`
	TrackIndex     int    `json:"trackIndex"`
	SourceCodec    string `json:"sourceCodec"`
	TargetCodec    string `json:"targetCodec,omitempty"`
	Backend        string `json:"backend,omitempty"`
	MaxWidth       int    `json:"maxWidth,omitempty"`
	MaxHeight      int    `json:"maxHeight,omitempty"`
	TargetBitDepth int    `json:"targetBitDepth,omitempty"`
	Bitrate        int64  `json:"bitrate,omitempty"`
	Reason         string `json:"reason"`
}

// AudioDecision is the outcome for the selected audio track.
type AudioDecision struct {
	Action      Action `json:"action"`
	TrackIndex  int    `json:"trackIndex"`
	SourceCodec string `json:"sourceCodec"`
	TargetCodec string `json:"targetCodec,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	Bitrate     int64  `json:"bitrate,omitempty"`
	Reason      string `json:"reason"`
}

// SubtitleDecision is the outcome for the selected subtitle track.
type SubtitleDecision struct {
	Action     Action `json:"action"`
	TrackIndex int    `json:"trackIndex"`
	Codec      string `json:"codec,omitempty"`
	Reason     string `json:"reason"`
}

// StreamPlan is the full decision for one (media, client, profile) tuple.
// Nil Video or Audio means the media has no track of that kind.
type StreamPlan struct {
	Mode      Mode              `json:"mode"`
	Profile   string            `json:"profile"`
	Container ContainerDecision `json:"container"`
	Video     *VideoDecision    `json:"video,omitempty"`
	Audio     *AudioDecision    `json:"audio,omitempty"`
	Subtitle  SubtitleDecision  `json:"subtitle"`

	DirectPlayReasons []string `json:"directPlayReasons"`
	RemuxReasons      []string `json:"remuxReasons"`
	TranscodeReasons  []string `json:"transcodeReasons"`
}

// Options carry the caller-side inputs that are not capability facts.
type Options struct {
	Profile          *QualityProfile
	PreferFragmented bool   // force direct_play to direct_remux
	PreferredBackend string // annotated on video transcodes
	BurnInSubtitle   *int   // stream index the caller wants burned in
}

// NeedsEncode reports whether serving the plan requires segment production.
func (p StreamPlan) NeedsEncode() bool {
	return p.Mode != ModeDirectPlay
}

// VideoCopy reports whether video needs no re-encode.
func (p StreamPlan) VideoCopy() bool {
	return p.Video == nil || p.Video.Action == ActionCopy
}

// AudioCopy reports whether audio needs no re-encode.
func (p StreamPlan) AudioCopy() bool {
	return p.Audio == nil || p.Audio.Action == ActionCopy
}
