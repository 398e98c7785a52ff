// SPDX-License-Identifier: MIT

// Package ffmpeg builds segment encode commands and runs them as supervised
// subprocesses.
package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// Progress is one block of `-progress` output.
type Progress struct {
	Frame     int64
	FPS       float64
	OutTime   time.Duration
	TotalSize int64
	Speed     string
	Done      bool
}

// progressParser accumulates key=value lines until a "progress=" terminator.
type progressParser struct {
	cur Progress
}

// feed consumes one line and returns a completed block when one ends.
func (p *progressParser) feed(line string) (Progress, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "frame":
		p.cur.Frame, _ = strconv.ParseInt(val, 10, 64)
	case "fps":
		p.cur.FPS, _ = strconv.ParseFloat(val, 64)
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(val, 10, 64); err == nil && us >= 0 {
			p.cur.OutTime = time.Duration(us) * time.Microsecond
		}
	case "total_size":
		p.cur.TotalSize, _ = strconv.ParseInt(val, 10, 64)
	case "speed":
		p.cur.Speed = val
	case "progress":
		p.cur.Done = val == "end"
		out := p.cur
		p.cur = Progress{}
		return out, true
	}
	return Progress{}, false
}
