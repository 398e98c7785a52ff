// SPDX-License-Identifier: MIT

package hardware

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/aleczinn/loki-sub000/internal/media"
)

// EncoderTable maps backend → canonical codec → ffmpeg encoder name.
type EncoderTable map[Backend]map[string]string

var gpuSuffixes = map[string]Backend{
	"_nvenc":        BackendNVENC,
	"_qsv":          BackendQSV,
	"_videotoolbox": BackendVideoToolbox,
	"_vaapi":        BackendVAAPI,
	"_amf":          BackendAMF,
}

// Software encoders in preference order per codec.
var softwareEncoders = []struct {
	name  string
	codec string
}{
	{"libx264", media.CodecH264},
	{"libopenh264", media.CodecH264},
	{"libx265", media.CodecHEVC},
	{"libsvtav1", media.CodecAV1},
	{"libaom-av1", media.CodecAV1},
	{"libvpx-vp9", media.CodecVP9},
}

var segmentCodecs = map[string]bool{
	media.CodecH264: true,
	media.CodecHEVC: true,
	media.CodecAV1:  true,
	media.CodecVP9:  true,
}

// ParseEncoders classifies the video encoders listed by `ffmpeg -encoders`.
func ParseEncoders(out []byte) EncoderTable {
	table := EncoderTable{}
	names := map[string]bool{}

	sc := bufio.NewScanner(bytes.NewReader(out))
	inList := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		names[fields[1]] = true
	}

	for name := range names {
		for suffix, backend := range gpuSuffixes {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			codec := media.CanonicalCodec(strings.TrimSuffix(name, suffix))
			if segmentCodecs[codec] {
				table.add(backend, codec, name)
			}
		}
	}
	for _, sw := range softwareEncoders {
		if names[sw.name] {
			if _, taken := table[BackendSoftware][sw.codec]; !taken {
				table.add(BackendSoftware, sw.codec, sw.name)
			}
		}
	}
	return table
}

func (t EncoderTable) add(b Backend, codec, name string) {
	if t[b] == nil {
		t[b] = map[string]string{}
	}
	t[b][codec] = name
}

// trialEncoder picks the encoder used to probe a backend, if listed.
func (t EncoderTable) trialEncoder(b Backend) (string, bool) {
	for _, codec := range []string{media.CodecH264, media.CodecHEVC, media.CodecAV1} {
		if name, ok := t[b][codec]; ok {
			return name, true
		}
	}
	return "", false
}
