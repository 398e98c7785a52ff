// SPDX-License-Identifier: MIT

package hardware

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
)

// ProbeOutcome classifies one trial encode.
type ProbeOutcome string

const (
	OutcomeOK             ProbeOutcome = "ok"
	OutcomeEncoderMissing ProbeOutcome = "encoder_missing"
	OutcomeNoDevice       ProbeOutcome = "no_device"
	OutcomeInitFailed     ProbeOutcome = "init_failed"
	OutcomeUnsupported    ProbeOutcome = "unsupported"
	OutcomeTimeout        ProbeOutcome = "timeout"
	OutcomeUnknown        ProbeOutcome = "unknown"
)

// Patterns are matched lower-cased, in table order; the first hit wins.
var outcomePatterns = []struct {
	outcome  ProbeOutcome
	patterns []string
}{
	{OutcomeEncoderMissing, []string{
		"unknown encoder",
		"encoder not found",
		"requested encoder",
	}},
	{OutcomeNoDevice, []string{
		"cannot load libcuda",
		"no nvenc capable devices",
		"no va display",
		"no device available",
		"no such file or directory",
		"cannot open the x display",
		"failed to open /dev/dri",
		"no valid device",
		"cuinit(0) failed",
	}},
	{OutcomeInitFailed, []string{
		"failed to initialise",
		"failed to initialize",
		"error initializing",
		"could not open encoder",
		"device creation failed",
		"failed to set value",
		"error while opening encoder",
		"failed to create",
	}},
	{OutcomeUnsupported, []string{
		"not supported",
		"unsupported",
		"function not implemented",
		"no usable encoding entrypoint",
		"no usable encoding profile",
		"driver does not support",
	}},
}

// Classify maps a trial encode result to an outcome.
func Classify(err error, stderr []byte) ProbeOutcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		// The ffmpeg binary itself is missing.
		return OutcomeEncoderMissing
	}

	text := strings.ToLower(string(stderr))
	for _, group := range outcomePatterns {
		for _, p := range group.patterns {
			if strings.Contains(text, p) {
				return group.outcome
			}
		}
	}
	return OutcomeUnknown
}

// stderrTail returns the last non-empty lines of b, at most n of them.
func stderrTail(b []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			out = append([]string{l}, out...)
		}
	}
	s := strings.Join(out, " | ")
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}
