// SPDX-License-Identifier: MIT

// Package session owns playback sessions and produces their HLS segments on
// demand.
//
// A session is keyed by (client token, media id, quality profile). Segments
// move through absent → transcoding → ready | failed; concurrent requests for
// the same segment join the in-flight encode, and a failed segment is retried
// once on the next request. Idle sessions are reclaimed by the sweeper, which
// cancels their encodes and removes their working directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/media"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSegmentOutOfRange = errors.New("segment index out of range")
	ErrSegmentFailed     = errors.New("segment encode failed")
	ErrDirectPlay        = errors.New("session is direct play; no segments")
	ErrInvalidRequest    = errors.New("invalid session request")
	ErrInvalidPosition   = errors.New("invalid playback position")
	ErrClosed            = errors.New("orchestrator closed")
)

// SegmentState is the lifecycle state of one segment.
type SegmentState string

const (
	SegmentAbsent      SegmentState = "absent"
	SegmentTranscoding SegmentState = "transcoding"
	SegmentReady       SegmentState = "ready"
	SegmentFailed      SegmentState = "failed"
)

// maxAttempts bounds encodes per segment: the first try plus one retry.
const maxAttempts = 2

// Request identifies the playback a client asks for.
type Request struct {
	ClientToken    string
	Media          media.MediaDescriptor
	Caps           capabilities.ClientCapabilities
	Profile        decision.QualityProfile
	BurnInSubtitle *int
}

func (r Request) key() string {
	burn := "-"
	if r.BurnInSubtitle != nil {
		burn = fmt.Sprint(*r.BurnInSubtitle)
	}
	profile := r.Profile.Name
	if profile == "" {
		profile = decision.ProfileOriginal
	}
	return r.ClientToken + "\x00" + r.Media.ID + "\x00" + profile + "\x00" + burn
}

// EncodeRequest is one segment encode handed to a SegmentEncoder.
type EncodeRequest struct {
	SessionID       string
	Media           media.MediaDescriptor
	Plan            decision.StreamPlan
	Index           int
	Start           float64 // seconds
	Duration        float64 // seconds
	SegmentDuration float64
	OutputPath      string
}

// SegmentEncoder produces one segment file at req.OutputPath. It must return
// once ctx is cancelled and must not leave a partial file at OutputPath.
type SegmentEncoder interface {
	EncodeSegment(ctx context.Context, req EncodeRequest) error
}

// Planner computes the stream plan of a new session.
type Planner interface {
	Plan(m media.MediaDescriptor, caps capabilities.ClientCapabilities, opts decision.Options) decision.StreamPlan
}

// SegmentResult is the outcome of a segment lookup.
type SegmentResult struct {
	Index    int
	State    SegmentState
	Path     string
	Duration float64
}

// Ready reports whether the segment can be served.
func (r SegmentResult) Ready() bool { return r.State == SegmentReady }

// SeekResult is the segment playback should resume from.
type SeekResult struct {
	TargetSegment int     `json:"targetSegment"`
	SegmentStart  float64 `json:"segmentStart"`
}

// ProgressResult hints the next segment a client will need.
type ProgressResult struct {
	CurrentSegment int `json:"currentSegment"`
	NextSegment    int `json:"nextSegment"` // -1 at the end
}

// SegmentDurations splits total seconds into ceil(total/seg) segments; the
// last one carries the remainder.
func SegmentDurations(total, seg float64) []float64 {
	if total <= 0 || seg <= 0 {
		return nil
	}
	n := int(math.Ceil(total / seg))
	out := make([]float64, n)
	for i := range out {
		out[i] = seg
	}
	out[n-1] = total - float64(n-1)*seg
	return out
}
