// SPDX-License-Identifier: MIT

package hardware

import "github.com/aleczinn/loki-sub000/internal/media"

// Selection is the encoder chosen for one codec.
type Selection struct {
	Backend Backend
	Encoder string
}

// Select resolves the encoder for codec on backend (empty means preferred).
// A backend without that codec falls back to the software encoder.
func (d *Detector) Select(codec string, backend Backend) (Selection, bool) {
	info := d.Info()
	if backend == "" {
		backend = info.Preferred
	}
	codec = media.CanonicalCodec(codec)
	if info.IsAvailable(backend) {
		if enc, ok := info.Encoders[backend][codec]; ok {
			return Selection{Backend: backend, Encoder: enc}, true
		}
	}
	if enc, ok := info.Encoders[BackendSoftware][codec]; ok {
		return Selection{Backend: BackendSoftware, Encoder: enc}, true
	}
	return Selection{}, false
}

// GetEncoder returns the encoder id for codec, or false when no backend can encode it.
func (d *Detector) GetEncoder(codec string, backend Backend) (string, bool) {
	sel, ok := d.Select(codec, backend)
	return sel.Encoder, ok
}

// GetInputArgs returns the arguments placed before -i for backend.
func (d *Detector) GetInputArgs(backend Backend) []string {
	return inputArgsFor(backend, d.cfg.VAAPIDevice)
}

// UploadFilter returns the filter suffix that moves frames to the device,
// or "" when the encoder accepts system-memory frames.
func (d *Detector) UploadFilter(backend Backend) string {
	return uploadFilterFor(backend)
}

// GetPreset returns the preset token for backend at tier, or "" when the
// backend takes no preset.
func (d *Detector) GetPreset(backend Backend, tier QualityTier) string {
	return presets[backend][tier]
}

// PresetArgs returns the preset flag and token for backend at tier.
func (d *Detector) PresetArgs(backend Backend, tier QualityTier) []string {
	p := d.GetPreset(backend, tier)
	switch {
	case p == "":
		return nil
	case backend == BackendAMF:
		return []string{"-quality", p}
	default:
		return []string{"-preset", p}
	}
}

// GetEncoderArgs returns codec selection and tuning arguments for backend.
// The result is nil when the backend cannot encode codec.
func (d *Detector) GetEncoderArgs(backend Backend, codec string) []string {
	info := d.Info()
	enc, ok := info.Encoders[backend][media.CanonicalCodec(codec)]
	if !ok || !info.IsAvailable(backend) {
		return nil
	}
	args := []string{"-c:v", enc}
	args = append(args, tuning[backend]...)
	if enc == "libx264" {
		args = append(args, "-profile:v", "high")
	}
	return args
}

func inputArgsFor(b Backend, vaapiDevice string) []string {
	switch b {
	case BackendNVENC:
		return []string{"-hwaccel", "cuda"}
	case BackendQSV:
		return []string{"-init_hw_device", "qsv=hw", "-filter_hw_device", "hw"}
	case BackendVAAPI:
		return []string{"-vaapi_device", vaapiDevice}
	case BackendVideoToolbox:
		return []string{"-hwaccel", "videotoolbox"}
	default:
		return nil
	}
}

func uploadFilterFor(b Backend) string {
	switch b {
	case BackendVAAPI:
		return "format=nv12,hwupload"
	case BackendQSV:
		return "format=nv12,hwupload=extra_hw_frames=64,format=qsv"
	default:
		return ""
	}
}

var presets = map[Backend]map[QualityTier]string{
	BackendSoftware: {TierHigh: "medium", TierBalanced: "veryfast", TierFast: "ultrafast"},
	BackendNVENC:    {TierHigh: "p6", TierBalanced: "p4", TierFast: "p1"},
	BackendQSV:      {TierHigh: "slow", TierBalanced: "medium", TierFast: "veryfast"},
	BackendAMF:      {TierHigh: "quality", TierBalanced: "balanced", TierFast: "speed"},
}

var tuning = map[Backend][]string{
	BackendSoftware:     {"-pix_fmt", "yuv420p"},
	BackendNVENC:        {"-rc", "vbr", "-pix_fmt", "yuv420p"},
	BackendQSV:          {"-look_ahead", "0"},
	BackendVAAPI:        {"-rc_mode", "VBR"},
	BackendVideoToolbox: {"-realtime", "1", "-allow_sw", "1", "-pix_fmt", "yuv420p"},
	BackendAMF:          {"-usage", "transcoding", "-pix_fmt", "yuv420p"},
}
