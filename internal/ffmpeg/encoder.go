// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/hardware"
	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/session"
	"github.com/aleczinn/loki-sub000/internal/telemetry"
)

// Accelerator resolves encoders and their arguments. *hardware.Detector
// satisfies it.
type Accelerator interface {
	Select(codec string, backend hardware.Backend) (hardware.Selection, bool)
	GetInputArgs(backend hardware.Backend) []string
	UploadFilter(backend hardware.Backend) string
	PresetArgs(backend hardware.Backend, tier hardware.QualityTier) []string
	GetEncoderArgs(backend hardware.Backend, codec string) []string
}

// ProcessRunner runs one ffmpeg invocation.
type ProcessRunner interface {
	Run(ctx context.Context, args []string, onProgress func(Progress)) error
}

// SegmentEncoder produces HLS segments with ffmpeg.
type SegmentEncoder struct {
	hw     Accelerator
	runner ProcessRunner
	logger zerolog.Logger
}

var _ session.SegmentEncoder = (*SegmentEncoder)(nil)

// NewSegmentEncoder combines an accelerator and a runner.
func NewSegmentEncoder(hw Accelerator, runner ProcessRunner) *SegmentEncoder {
	return &SegmentEncoder{hw: hw, runner: runner, logger: xglog.WithComponent("encoder")}
}

// EncodeSegment implements session.SegmentEncoder. The segment is written to
// a temporary file next to req.OutputPath and renamed into place only after
// ffmpeg exits cleanly.
func (e *SegmentEncoder) EncodeSegment(ctx context.Context, req session.EncodeRequest) error {
	job, sel, err := e.Job(req)
	if err != nil {
		return err
	}
	final := job.Output
	job.Output = tmpPath(final)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		var in, out string
		if v := req.Plan.Video; v != nil {
			in, out = v.SourceCodec, v.TargetCodec
		}
		span.SetAttributes(telemetry.TranscodeAttributes(in, out, string(sel.Backend), sel.Encoder)...)
	}

	var last Progress
	err = e.runner.Run(ctx, BuildSegmentArgs(job), func(p Progress) { last = p })
	if err != nil {
		_ = os.Remove(job.Output)
		return err
	}
	if err := os.Rename(job.Output, final); err != nil {
		_ = os.Remove(job.Output)
		return fmt.Errorf("publish segment: %w", err)
	}

	e.logger.Debug().
		Str(xglog.FieldSessionID, req.SessionID).
		Int(xglog.FieldSegment, req.Index).
		Str(xglog.FieldBackend, string(sel.Backend)).
		Str(xglog.FieldEncoder, sel.Encoder).
		Int64("frames", last.Frame).
		Str("speed", last.Speed).
		Msg("segment encoded")
	return nil
}

// Job resolves the plan of req into a concrete SegmentJob. The returned
// Selection is empty when video is copied or absent.
func (e *SegmentEncoder) Job(req session.EncodeRequest) (SegmentJob, hardware.Selection, error) {
	if req.Media.Path == "" {
		return SegmentJob{}, hardware.Selection{}, errors.New("media has no path")
	}
	job := SegmentJob{
		Input:           req.Media.Path,
		Output:          req.OutputPath,
		Start:           req.Start,
		Duration:        req.Duration,
		SegmentDuration: req.SegmentDuration,
	}

	var sel hardware.Selection
	plan := req.Plan
	if v := plan.Video; v != nil {
		if plan.VideoCopy() {
			job.Video = &VideoJob{Track: v.TrackIndex, Copy: true, BurnInSubtitle: -1}
		} else {
			vj, s, err := e.videoJob(req.Media, plan)
			if err != nil {
				return SegmentJob{}, hardware.Selection{}, err
			}
			job.Video, sel = vj, s
		}
	}
	if a := plan.Audio; a != nil {
		job.Audio = &AudioJob{
			Track:    a.TrackIndex,
			Copy:     plan.AudioCopy(),
			Codec:    a.TargetCodec,
			Channels: a.Channels,
			Bitrate:  a.Bitrate,
		}
	}
	if job.Video == nil && job.Audio == nil {
		return SegmentJob{}, hardware.Selection{}, errors.New("plan has no playable tracks")
	}
	return job, sel, nil
}

func (e *SegmentEncoder) videoJob(m media.MediaDescriptor, plan decision.StreamPlan) (*VideoJob, hardware.Selection, error) {
	v := plan.Video
	sel, ok := e.hw.Select(v.TargetCodec, hardware.Backend(v.Backend))
	if !ok {
		return nil, sel, fmt.Errorf("no encoder for %s", v.TargetCodec)
	}
	profile, _ := decision.LookupProfile(plan.Profile)
	tier := hardware.ParseTier(profile.Tier)

	vj := &VideoJob{
		Track:          v.TrackIndex,
		InputArgs:      e.hw.GetInputArgs(sel.Backend),
		EncoderArgs:    e.hw.GetEncoderArgs(sel.Backend, v.TargetCodec),
		PresetArgs:     e.hw.PresetArgs(sel.Backend, tier),
		UploadFilter:   e.hw.UploadFilter(sel.Backend),
		MaxWidth:       v.MaxWidth,
		MaxHeight:      v.MaxHeight,
		Bitrate:        v.Bitrate,
		TenBit:         v.TargetBitDepth == 10 && sel.Backend == hardware.BackendSoftware,
		BurnInSubtitle: -1,
	}
	if len(vj.EncoderArgs) == 0 {
		vj.EncoderArgs = []string{"-c:v", sel.Encoder}
	}
	if plan.Subtitle.Action == decision.ActionBurnIn {
		vj.BurnInSubtitle = subtitleOrdinal(m, plan.Subtitle.TrackIndex)
	}
	return vj, sel, nil
}

// subtitleOrdinal returns the position of stream index among subtitle
// streams, which is what the subtitles filter's si option expects.
func subtitleOrdinal(m media.MediaDescriptor, index int) int {
	for i, s := range m.Subtitles {
		if s.Index == index {
			return i
		}
	}
	return -1
}

func tmpPath(final string) string {
	dir, name := filepath.Split(final)
	return filepath.Join(dir, "."+name+".part")
}
