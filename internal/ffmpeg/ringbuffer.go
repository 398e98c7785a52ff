// SPDX-License-Identifier: MIT

package ffmpeg

import "sync"

// RingBuffer keeps the most recent lines of subprocess output.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	pos   int
	full  bool
}

// NewRingBuffer creates a buffer holding size lines.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{lines: make([]string, size)}
}

// Add appends a line, overwriting the oldest when full.
func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.pos]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.pos:]...)
	return append(out, r.lines[:r.pos]...)
}
