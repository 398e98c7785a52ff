// SPDX-License-Identifier: MIT

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoPlayableStreams is returned when ffprobe output has neither video nor audio.
var ErrNoPlayableStreams = errors.New("no playable streams")

// Prober builds descriptors with ffprobe.
type Prober struct {
	Bin    string
	Logger zerolog.Logger
}

// NewProber returns a prober invoking bin (defaults to "ffprobe").
func NewProber(bin string, logger zerolog.Logger) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{Bin: bin, Logger: logger}
}

// Probe runs ffprobe against path and returns its descriptor.
func (p *Prober) Probe(ctx context.Context, path string) (MediaDescriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return MediaDescriptor{}, fmt.Errorf("stat media: %w", err)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	// #nosec G204 - binary comes from config; path is passed as a single argument
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, runErr := cmd.Output()
	desc, parseErr := ParseProbeOutput(out, path)
	if parseErr != nil {
		if runErr != nil {
			return MediaDescriptor{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", runErr, truncate(stderr.String(), 4096))
		}
		return MediaDescriptor{}, parseErr
	}
	if runErr != nil {
		// Non-zero exit with usable JSON happens on truncated files.
		p.Logger.Warn().Err(runErr).Str("path", path).Str("stderr", truncate(stderr.String(), 4096)).
			Msg("ffprobe non-zero exit but JSON accepted")
	}
	desc.SizeBytes = fi.Size()
	return desc, nil
}

// ParseProbeOutput converts ffprobe JSON into a descriptor for path.
func ParseProbeOutput(out []byte, path string) (MediaDescriptor, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return MediaDescriptor{}, fmt.Errorf("json decode: %w", err)
	}

	desc := MediaDescriptor{
		ID:        IDForPath(path),
		Path:      path,
		Container: ContainerFromPath(path),
		ProbedAt:  time.Now().UTC(),
	}
	if desc.Container == "" {
		desc.Container = CanonicalContainer(data.Format.FormatName)
	}
	desc.Duration = parseFloat(data.Format.Duration)
	desc.Bitrate = int64(parseFloat(data.Format.BitRate))
	if sz := int64(parseFloat(data.Format.Size)); sz > 0 {
		desc.SizeBytes = sz
	}

	for _, s := range data.Streams {
		if s.CodecName == "" {
			continue
		}
		switch s.CodecType {
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue // cover art
			}
			desc.Video = append(desc.Video, VideoTrack{
				Index:     s.Index,
				Codec:     CanonicalCodec(s.CodecName),
				Profile:   strings.ToLower(s.Profile),
				Width:     s.Width,
				Height:    s.Height,
				BitDepth:  bitDepth(s.BitsPerRawSample, s.PixFmt),
				FrameRate: parseRate(s.AvgFrameRate),
			})
			if desc.Duration == 0 {
				desc.Duration = parseFloat(s.Duration)
			}
		case "audio":
			desc.Audio = append(desc.Audio, AudioTrack{
				Index:      s.Index,
				Codec:      CanonicalCodec(s.CodecName),
				Channels:   s.Channels,
				SampleRate: int(parseFloat(s.SampleRate)),
				Language:   s.Tags.Language,
				Default:    s.Disposition.Default == 1,
			})
		case "subtitle":
			codec := CanonicalCodec(s.CodecName)
			desc.Subtitles = append(desc.Subtitles, SubtitleTrack{
				Index:    s.Index,
				Codec:    codec,
				Language: s.Tags.Language,
				Forced:   s.Disposition.Forced == 1,
				Default:  s.Disposition.Default == 1,
				Text:     IsTextSubtitle(codec),
			})
		}
	}

	if len(desc.Video) == 0 && len(desc.Audio) == 0 {
		return MediaDescriptor{}, ErrNoPlayableStreams
	}
	return desc, nil
}

func bitDepth(rawSample, pixFmt string) int {
	if v, err := strconv.Atoi(rawSample); err == nil && v > 0 {
		return v
	}
	switch {
	case strings.Contains(pixFmt, "12le"), strings.Contains(pixFmt, "12be"):
		return 12
	case strings.Contains(pixFmt, "10le"), strings.Contains(pixFmt, "10be"), pixFmt == "p010le":
		return 10
	default:
		return 8
	}
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d <= 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type probeData struct {
	Streams []struct {
		Index            int    `json:"index"`
		CodecType        string `json:"codec_type"`
		CodecName        string `json:"codec_name"`
		Profile          string `json:"profile,omitempty"`
		PixFmt           string `json:"pix_fmt,omitempty"`
		BitsPerRawSample string `json:"bits_per_raw_sample,omitempty"`
		Duration         string `json:"duration,omitempty"`
		Width            int    `json:"width,omitempty"`
		Height           int    `json:"height,omitempty"`
		AvgFrameRate     string `json:"avg_frame_rate,omitempty"`
		Channels         int    `json:"channels,omitempty"`
		SampleRate       string `json:"sample_rate,omitempty"`
		Disposition      struct {
			Default     int `json:"default"`
			Forced      int `json:"forced"`
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
		Tags struct {
			Language string `json:"language"`
		} `json:"tags"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
	} `json:"format"`
}
