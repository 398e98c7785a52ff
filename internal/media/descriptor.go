// SPDX-License-Identifier: MIT

// Package media describes scanned media files and the codec vocabulary shared
// by the decision engine, the encoder and the capability registry.
package media

import "time"

// MediaDescriptor is the immutable result of probing one file.
type MediaDescriptor struct {
	ID        string          `json:"id"`
	Path      string          `json:"-"`
	Container string          `json:"container"`
	SizeBytes int64           `json:"sizeBytes"`
	Duration  float64         `json:"durationSeconds"`
	Bitrate   int64           `json:"bitrate,omitempty"`
	Video     []VideoTrack    `json:"video,omitempty"`
	Audio     []AudioTrack    `json:"audio,omitempty"`
	Subtitles []SubtitleTrack `json:"subtitles,omitempty"`
	ProbedAt  time.Time       `json:"probedAt"`
}

// VideoTrack is one video stream.
type VideoTrack struct {
	Index     int     `json:"index"`
	Codec     string  `json:"codec"`
	Profile   string  `json:"profile,omitempty"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	BitDepth  int     `json:"bitDepth"`
	FrameRate float64 `json:"frameRate,omitempty"`
}

// AudioTrack is one audio stream.
type AudioTrack struct {
	Index      int    `json:"index"`
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Language   string `json:"language,omitempty"`
	Default    bool   `json:"default,omitempty"`
}

// SubtitleTrack is one subtitle stream.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
	Default  bool   `json:"default,omitempty"`
	Text     bool   `json:"text"`
}

// PrimaryVideo returns the first video track, or nil for audio-only media.
func (d MediaDescriptor) PrimaryVideo() *VideoTrack {
	if len(d.Video) == 0 {
		return nil
	}
	v := d.Video[0]
	return &v
}

// PrimaryAudio returns the default audio track, else the first one, else nil.
func (d MediaDescriptor) PrimaryAudio() *AudioTrack {
	if len(d.Audio) == 0 {
		return nil
	}
	for _, a := range d.Audio {
		if a.Default {
			a := a
			return &a
		}
	}
	a := d.Audio[0]
	return &a
}

// PrimarySubtitle returns a forced track first, then a default one, then the first.
func (d MediaDescriptor) PrimarySubtitle() *SubtitleTrack {
	if len(d.Subtitles) == 0 {
		return nil
	}
	for _, s := range d.Subtitles {
		if s.Forced {
			s := s
			return &s
		}
	}
	for _, s := range d.Subtitles {
		if s.Default {
			s := s
			return &s
		}
	}
	s := d.Subtitles[0]
	return &s
}
