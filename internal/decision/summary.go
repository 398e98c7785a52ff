// SPDX-License-Identifier: MIT

package decision

// PlanSummary is the flattened view of a plan used for logs and the plan endpoint.
type PlanSummary struct {
	Mode        string `json:"mode"`
	Container   string `json:"container"`
	VideoCodec  string `json:"videoCodec"`
	AudioCodec  string `json:"audioCodec"`
	Backend     string `json:"backend,omitempty"`
	Subtitle    string `json:"subtitle"`
	ReasonCount int    `json:"reasonCount"`
}

// Summary flattens the plan into its output-facing facts.
func (p StreamPlan) Summary() PlanSummary {
	s := PlanSummary{
		Mode:        string(p.Mode),
		Container:   p.Container.Target,
		VideoCodec:  "none",
		AudioCodec:  "none",
		Subtitle:    string(p.Subtitle.Action),
		ReasonCount: len(p.DirectPlayReasons) + len(p.RemuxReasons) + len(p.TranscodeReasons),
	}
	if v := p.Video; v != nil {
		s.VideoCodec = v.SourceCodec
		if v.Action == ActionTranscode {
			s.VideoCodec = v.TargetCodec
			s.Backend = v.Backend
		}
	}
	if a := p.Audio; a != nil {
		s.AudioCodec = a.SourceCodec
		if a.Action == ActionTranscode {
			s.AudioCodec = a.TargetCodec
		}
	}
	if s.Subtitle == "" {
		s.Subtitle = string(ActionNone)
	}
	return s
}
