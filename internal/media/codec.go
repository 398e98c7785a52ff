// SPDX-License-Identifier: MIT

package media

import (
	"path/filepath"
	"strings"
)

// Canonical codec ids.
const (
	CodecH264   = "h264"
	CodecHEVC   = "hevc"
	CodecAV1    = "av1"
	CodecVP9    = "vp9"
	CodecVP8    = "vp8"
	CodecMPEG2  = "mpeg2"
	CodecMPEG4  = "mpeg4"
	CodecAAC    = "aac"
	CodecAC3    = "ac3"
	CodecEAC3   = "eac3"
	CodecMP3    = "mp3"
	CodecOpus   = "opus"
	CodecFLAC   = "flac"
	CodecVorbis = "vorbis"
	CodecDTS    = "dts"
	CodecTrueHD = "truehd"
)

// Canonical container ids.
const (
	ContainerMP4  = "mp4"
	ContainerMKV  = "mkv"
	ContainerWebM = "webm"
	ContainerTS   = "ts"
	ContainerMOV  = "mov"
	ContainerAVI  = "avi"
	ContainerFLV  = "flv"
	ContainerWMV  = "wmv"
)

var codecAliases = map[string]string{
	"h264": CodecH264, "avc": CodecH264, "avc1": CodecH264, "x264": CodecH264, "libx264": CodecH264,
	"hevc": CodecHEVC, "h265": CodecHEVC, "hvc1": CodecHEVC, "hev1": CodecHEVC, "x265": CodecHEVC, "libx265": CodecHEVC,
	"av1": CodecAV1, "av01": CodecAV1, "libsvtav1": CodecAV1, "libaom-av1": CodecAV1, "libdav1d": CodecAV1,
	"vp9": CodecVP9, "vp09": CodecVP9, "libvpx-vp9": CodecVP9,
	"vp8": CodecVP8, "libvpx": CodecVP8,
	"mpeg2video": CodecMPEG2, "mpeg2": CodecMPEG2, "mpeg-2": CodecMPEG2,
	"mpeg4": CodecMPEG4, "xvid": CodecMPEG4, "divx": CodecMPEG4, "mp4v": CodecMPEG4,
	"aac": CodecAAC, "mp4a": CodecAAC, "libfdk_aac": CodecAAC, "aac_latm": CodecAAC,
	"ac3": CodecAC3, "ac-3": CodecAC3,
	"eac3": CodecEAC3, "e-ac-3": CodecEAC3, "ec-3": CodecEAC3,
	"mp3": CodecMP3, "mp3float": CodecMP3, "libmp3lame": CodecMP3,
	"opus": CodecOpus, "libopus": CodecOpus,
	"flac": CodecFLAC,
	"vorbis": CodecVorbis, "libvorbis": CodecVorbis,
	"dts": CodecDTS, "dca": CodecDTS,
	"truehd": CodecTrueHD, "mlp": CodecTrueHD,
	"subrip": "subrip", "srt": "subrip",
	"ass": "ass", "ssa": "ass",
	"webvtt": "webvtt", "vtt": "webvtt",
	"mov_text": "mov_text", "tx3g": "mov_text",
	"hdmv_pgs_subtitle": "pgs", "pgs": "pgs", "pgssub": "pgs",
	"dvd_subtitle": "dvdsub", "vobsub": "dvdsub",
}

// hardware encoder suffixes map back to their codec family, e.g. h264_vaapi.
var encoderSuffixes = []string{"_nvenc", "_qsv", "_vaapi", "_videotoolbox", "_amf", "_v4l2m2m", "_cuvid"}

var textSubtitleCodecs = map[string]bool{
	"subrip": true, "ass": true, "webvtt": true, "mov_text": true, "text": true,
}

var containerAliases = map[string]string{
	"mp4": ContainerMP4, "m4v": ContainerMP4, "m4a": ContainerMP4, "mov,mp4,m4a,3gp,3g2,mj2": ContainerMP4,
	"mkv": ContainerMKV, "matroska": ContainerMKV, "mka": ContainerMKV,
	"webm": ContainerWebM,
	"ts": ContainerTS, "mpegts": ContainerTS, "m2ts": ContainerTS, "mts": ContainerTS,
	"mov": ContainerMOV, "quicktime": ContainerMOV,
	"avi": ContainerAVI,
	"flv": ContainerFLV,
	"wmv": ContainerWMV, "asf": ContainerWMV,
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalCodec maps a codec or encoder name to its canonical id.
// Unknown names fall back to their lower-cased, trimmed form.
func CanonicalCodec(name string) string {
	n := normalizeToken(name)
	if n == "" {
		return ""
	}
	if c, ok := codecAliases[n]; ok {
		return c
	}
	for _, suffix := range encoderSuffixes {
		if strings.HasSuffix(n, suffix) {
			if c, ok := codecAliases[strings.TrimSuffix(n, suffix)]; ok {
				return c
			}
		}
	}
	// Dotted RFC 6381 strings such as "avc1.64001f" or "mp4a.40.2".
	if head, _, found := strings.Cut(n, "."); found {
		if c, ok := codecAliases[head]; ok {
			return c
		}
	}
	return n
}

// IsTextSubtitle reports whether a canonical subtitle codec is text based.
func IsTextSubtitle(codec string) bool {
	return textSubtitleCodecs[CanonicalCodec(codec)]
}

// CanonicalContainer maps a container name, an ffprobe format_name list or a
// file extension to its canonical id.
func CanonicalContainer(name string) string {
	n := strings.TrimPrefix(normalizeToken(name), ".")
	if n == "" {
		return ""
	}
	if c, ok := containerAliases[n]; ok {
		return c
	}
	for _, part := range strings.Split(n, ",") {
		if c, ok := containerAliases[strings.TrimSpace(part)]; ok {
			return c
		}
	}
	return n
}

// ContainerFromPath derives the canonical container from a file extension.
func ContainerFromPath(path string) string {
	return CanonicalContainer(filepath.Ext(path))
}
