// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentJob is a fully resolved encode of one time range into one segment file.
type SegmentJob struct {
	Input           string
	Output          string
	Start           float64 // seconds
	Duration        float64 // seconds
	SegmentDuration float64 // keyframe cadence
	Video           *VideoJob
	Audio           *AudioJob
}

// VideoJob describes the video leg. Copy ignores every other field.
type VideoJob struct {
	Track          int
	Copy           bool
	InputArgs      []string // before -i
	EncoderArgs    []string // -c:v and tuning
	PresetArgs     []string
	UploadFilter   string // appended to the filter chain
	MaxWidth       int
	MaxHeight      int
	Bitrate        int64
	TenBit         bool
	BurnInSubtitle int // ordinal among subtitle streams; -1 for none
}

// AudioJob describes the audio leg.
type AudioJob struct {
	Track    int
	Copy     bool
	Codec    string // canonical codec when transcoding
	Channels int
	Bitrate  int64
}

var audioEncoders = map[string]string{
	"aac":    "aac",
	"ac3":    "ac3",
	"eac3":   "eac3",
	"mp3":    "libmp3lame",
	"opus":   "libopus",
	"flac":   "flac",
	"vorbis": "libvorbis",
}

// BuildSegmentArgs renders the ffmpeg argument list for job. Output is a
// single MPEG-TS segment whose timestamps start at job.Start.
func BuildSegmentArgs(job SegmentJob) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}

	v := job.Video
	if v != nil && !v.Copy {
		args = append(args, v.InputArgs...)
	}
	args = append(args,
		"-ss", secs(job.Start),
		"-i", job.Input,
		"-t", secs(job.Duration),
	)

	if v != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", v.Track))
	}
	if job.Audio != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", job.Audio.Track))
	}

	switch {
	case v == nil:
		args = append(args, "-vn")
	case v.Copy:
		args = append(args, "-c:v", "copy")
	default:
		if chain := videoFilters(job); chain != "" {
			args = append(args, "-vf", chain)
		}
		enc := v.EncoderArgs
		if v.TenBit {
			enc = replaceFlagValue(enc, "-pix_fmt", "yuv420p10le")
		}
		args = append(args, enc...)
		args = append(args, v.PresetArgs...)
		if v.Bitrate > 0 {
			args = append(args,
				"-b:v", strconv.FormatInt(v.Bitrate, 10),
				"-maxrate", strconv.FormatInt(v.Bitrate, 10),
				"-bufsize", strconv.FormatInt(v.Bitrate*2, 10),
			)
		}
		if job.SegmentDuration > 0 {
			args = append(args, "-force_key_frames", "expr:gte(t,n_forced*"+secs(job.SegmentDuration)+")")
		}
	}

	switch a := job.Audio; {
	case a == nil:
		args = append(args, "-an")
	case a.Copy:
		args = append(args, "-c:a", "copy")
	default:
		enc, ok := audioEncoders[a.Codec]
		if !ok {
			enc = "aac"
		}
		args = append(args, "-c:a", enc)
		if a.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(a.Channels))
		}
		if a.Bitrate > 0 {
			args = append(args, "-b:a", strconv.FormatInt(a.Bitrate, 10))
		}
	}

	return append(args,
		"-sn", "-dn",
		"-output_ts_offset", secs(job.Start),
		"-muxdelay", "0",
		"-f", "mpegts",
		"-progress", "pipe:1",
		"-nostats",
		job.Output,
	)
}

func videoFilters(job SegmentJob) string {
	v := job.Video
	var chain []string
	if v.BurnInSubtitle >= 0 {
		// The subtitles filter reads its own timeline from the file start.
		chain = append(chain,
			"setpts=PTS+"+secs(job.Start)+"/TB",
			fmt.Sprintf("subtitles=filename='%s':si=%d", escapeFilterPath(job.Input), v.BurnInSubtitle),
			"setpts=PTS-STARTPTS",
		)
	}
	switch {
	case v.MaxWidth > 0 && v.MaxHeight > 0:
		chain = append(chain, fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2", v.MaxWidth, v.MaxHeight))
	case v.MaxHeight > 0:
		chain = append(chain, fmt.Sprintf("scale=-2:%d", v.MaxHeight))
	case v.MaxWidth > 0:
		chain = append(chain, fmt.Sprintf("scale=%d:-2", v.MaxWidth))
	}
	if v.UploadFilter != "" {
		chain = append(chain, v.UploadFilter)
	}
	return strings.Join(chain, ",")
}

func secs(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\\\`, `'`, `'\\\''`, `:`, `\\:`)
	return r.Replace(p)
}

func replaceFlagValue(args []string, flag, value string) []string {
	out := append([]string(nil), args...)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == flag {
			out[i+1] = value
			return out
		}
	}
	return append(out, flag, value)
}
