// SPDX-License-Identifier: MIT

package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/metrics"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultVAAPIDevice  = "/dev/dri/renderD128"
	defaultFFmpegBin    = "ffmpeg"
	defaultParallelism  = 2
)

// Config configures a Detector.
type Config struct {
	FFmpegBin    string
	VAAPIDevice  string
	ProbeTimeout time.Duration // per trial encode
	Override     string        // operator-preferred backend, honored only when available
	Parallelism  int           // concurrent trial encodes
}

// ProbeResult records one backend's trial.
type ProbeResult struct {
	Backend  Backend       `json:"backend"`
	Outcome  ProbeOutcome  `json:"outcome"`
	Encoder  string        `json:"encoder,omitempty"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
}

// Info is the cached detection result. It must be treated as read-only.
type Info struct {
	Available  []Backend     `json:"available"`
	Preferred  Backend       `json:"preferred"`
	Encoders   EncoderTable  `json:"encoders"`
	Probes     []ProbeResult `json:"probes"`
	Device     string        `json:"device,omitempty"`
	DetectedAt time.Time     `json:"detectedAt"`
}

// IsAvailable reports whether b passed detection.
func (i Info) IsAvailable(b Backend) bool {
	for _, a := range i.Available {
		if a == b {
			return true
		}
	}
	return false
}

// baselineInfo is what every host can do without probing.
func baselineInfo() Info {
	return Info{
		Available: []Backend{BackendSoftware},
		Preferred: BackendSoftware,
		Encoders:  EncoderTable{BackendSoftware: {media.CodecH264: "libx264"}},
	}
}

// Option customizes a Detector.
type Option func(*Detector)

// WithRunner replaces the subprocess runner.
func WithRunner(r CommandRunner) Option {
	return func(d *Detector) { d.runner = r }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// Detector probes the host once and answers encoder queries from the cache.
type Detector struct {
	cfg    Config
	runner CommandRunner
	logger zerolog.Logger

	sf   singleflight.Group
	mu   sync.RWMutex
	info *Info
}

// NewDetector creates a detector. Nothing is probed until Detect.
func NewDetector(cfg Config, opts ...Option) *Detector {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = defaultFFmpegBin
	}
	if cfg.VAAPIDevice == "" {
		cfg.VAAPIDevice = defaultVAAPIDevice
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	d := &Detector{
		cfg:    cfg,
		runner: ExecRunner{},
		logger: xglog.WithComponent("hwaccel"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the cached result, probing on first use. Concurrent first
// callers share one probe run. A caller whose ctx ends first gets the
// software baseline; the shared run still completes and is cached.
func (d *Detector) Detect(ctx context.Context) Info {
	if info, ok := d.cached(); ok {
		return info
	}
	ch := d.sf.DoChan("detect", func() (any, error) {
		if info, ok := d.cached(); ok {
			return info, nil
		}
		info := d.detect(context.WithoutCancel(ctx))
		d.mu.Lock()
		d.info = &info
		d.mu.Unlock()
		return info, nil
	})
	select {
	case res := <-ch:
		return res.Val.(Info)
	case <-ctx.Done():
		return baselineInfo()
	}
}

// Info returns the cached result, or the software baseline before Detect.
func (d *Detector) Info() Info {
	if info, ok := d.cached(); ok {
		return info
	}
	return baselineInfo()
}

func (d *Detector) cached() (Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.info == nil {
		return Info{}, false
	}
	return *d.info, true
}

func (d *Detector) detect(ctx context.Context) Info {
	start := time.Now()
	table, enumOK := d.enumerate(ctx)

	results := make([]ProbeResult, len(GPUPriority))
	var g errgroup.Group
	g.SetLimit(d.cfg.Parallelism)
	for i, b := range GPUPriority {
		g.Go(func() error {
			results[i] = d.probe(ctx, b, table, enumOK)
			return nil
		})
	}
	_ = g.Wait()

	info := Info{
		Encoders:   EncoderTable{},
		Probes:     results,
		Device:     d.cfg.VAAPIDevice,
		DetectedAt: time.Now(),
	}
	for _, r := range results {
		if r.Outcome != OutcomeOK {
			continue
		}
		info.Available = append(info.Available, r.Backend)
		if enc := table[r.Backend]; len(enc) > 0 {
			info.Encoders[r.Backend] = enc
		} else {
			info.Encoders.add(r.Backend, media.CodecH264, r.Encoder)
		}
	}
	info.Available = append(info.Available, BackendSoftware)
	info.Encoders[BackendSoftware] = table[BackendSoftware]
	if _, ok := info.Encoders[BackendSoftware][media.CodecH264]; !ok {
		info.Encoders.add(BackendSoftware, media.CodecH264, "libx264")
	}
	info.Preferred = d.choosePreferred(info)

	for _, b := range append(append([]Backend{}, GPUPriority...), BackendSoftware) {
		metrics.SetHWBackend(string(b), info.IsAvailable(b), b == info.Preferred)
	}
	d.logger.Info().
		Str(xglog.FieldEvent, "hwaccel.detect.complete").
		Str(xglog.FieldBackend, string(info.Preferred)).
		Interface("available", info.Available).
		Bool("encoder_list", enumOK).
		Int64(xglog.FieldDurationMS, time.Since(start).Milliseconds()).
		Msg("hardware acceleration detection finished")
	return info
}

func (d *Detector) enumerate(ctx context.Context) (EncoderTable, bool) {
	ectx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	stdout, stderr, err := d.runner.Run(ectx, d.cfg.FFmpegBin, "-hide_banner", "-encoders")
	if err != nil {
		d.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "hwaccel.encoders.failed").
			Str("stderr", stderrTail(stderr, 3)).
			Msg("encoder enumeration failed; probing with default encoder names")
		return EncoderTable{}, false
	}
	return ParseEncoders(stdout), true
}

func (d *Detector) probe(ctx context.Context, b Backend, table EncoderTable, enumOK bool) ProbeResult {
	res := ProbeResult{Backend: b}
	res.Encoder, _ = table.trialEncoder(b)
	if res.Encoder == "" {
		if enumOK {
			res.Outcome = OutcomeEncoderMissing
			res.Detail = "no encoder for backend in ffmpeg build"
			metrics.ObserveHWProbe(string(b), string(res.Outcome), 0)
			d.logger.Debug().Str(xglog.FieldBackend, string(b)).Msg("hwaccel probe skipped: encoder not compiled in")
			return res
		}
		res.Encoder = string(media.CodecH264) + "_" + string(b)
	}

	pctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	start := time.Now()
	_, stderr, err := d.runner.Run(pctx, d.cfg.FFmpegBin, d.trialArgs(b, res.Encoder)...)
	res.Duration = time.Since(start)
	if err != nil && pctx.Err() == context.DeadlineExceeded {
		err = context.DeadlineExceeded
	}
	res.Outcome = Classify(err, stderr)
	metrics.ObserveHWProbe(string(b), string(res.Outcome), res.Duration)

	if res.Outcome != OutcomeOK {
		res.Detail = stderrTail(stderr, 3)
		if res.Detail == "" && err != nil {
			res.Detail = err.Error()
		}
		d.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "hwaccel.probe.failed").
			Str(xglog.FieldBackend, string(b)).
			Str(xglog.FieldEncoder, res.Encoder).
			Str("outcome", string(res.Outcome)).
			Str("stderr", res.Detail).
			Int64(xglog.FieldDurationMS, res.Duration.Milliseconds()).
			Msg("hwaccel probe failed")
		return res
	}
	d.logger.Info().
		Str(xglog.FieldEvent, "hwaccel.probe.ok").
		Str(xglog.FieldBackend, string(b)).
		Str(xglog.FieldEncoder, res.Encoder).
		Int64(xglog.FieldDurationMS, res.Duration.Milliseconds()).
		Msg("hwaccel probe passed")
	return res
}

// trialArgs encodes five frames of a test pattern to the null muxer.
func (d *Detector) trialArgs(b Backend, encoder string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, inputArgsFor(b, d.cfg.VAAPIDevice)...)
	args = append(args, "-f", "lavfi", "-i", "testsrc=duration=0.2:size=320x240:rate=25")
	if f := uploadFilterFor(b); f != "" {
		args = append(args, "-vf", f)
	}
	return append(args, "-c:v", encoder, "-frames:v", "5", "-f", "null", "-")
}

func (d *Detector) choosePreferred(info Info) Backend {
	if d.cfg.Override != "" {
		want, ok := ParseBackend(d.cfg.Override)
		switch {
		case ok && info.IsAvailable(want):
			return want
		default:
			d.logger.Warn().
				Str(xglog.FieldEvent, "hwaccel.override.ignored").
				Str(xglog.FieldBackend, d.cfg.Override).
				Msg("requested hwaccel backend unavailable; using priority order")
		}
	}
	for _, b := range GPUPriority {
		if info.IsAvailable(b) {
			return b
		}
	}
	return BackendSoftware
}
