// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/metrics"
	"github.com/aleczinn/loki-sub000/internal/procgroup"
)

const (
	stderrLines      = 64
	defaultKillGrace = 2 * time.Second
)

// ExitError is a non-zero ffmpeg exit with the tail of its stderr.
type ExitError struct {
	ExitCode int
	Stderr   []string
	Err      error
}

func (e *ExitError) Error() string {
	last := ""
	for i := len(e.Stderr) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(e.Stderr[i]); s != "" {
			last = s
			break
		}
	}
	if last == "" {
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, last)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes ffmpeg in its own process group under a stall watchdog.
type Runner struct {
	Bin          string
	StartTimeout time.Duration // no progress at all
	StallTimeout time.Duration // progress stopped advancing
	KillGrace    time.Duration // SIGTERM to SIGKILL
	Logger       zerolog.Logger
}

// NewRunner creates a runner for bin with the component logger.
func NewRunner(bin string, stallTimeout time.Duration) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Runner{
		Bin:          bin,
		StartTimeout: stallTimeout,
		StallTimeout: stallTimeout,
		KillGrace:    defaultKillGrace,
		Logger:       xglog.WithComponent("ffmpeg"),
	}
}

// Run starts the command and blocks until it exits. Progress blocks parsed
// from stdout are delivered to onProgress, which may be nil. Cancelling ctx
// or tripping the watchdog terminates the whole process group.
func (r *Runner) Run(ctx context.Context, args []string, onProgress func(Progress)) error {
	// #nosec G204 -- binary from operator config, args built internally
	cmd := exec.Command(r.Bin, args...)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	logger := r.Logger.With().Int(xglog.FieldPID, cmd.Process.Pid).Logger()
	logger.Debug().Str(xglog.FieldEvent, "ffmpeg.start").Strs("args", args).Msg("ffmpeg started")

	ring := NewRingBuffer(stderrLines)
	wd := NewWatchdog(r.StartTimeout, r.StallTimeout)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanLines(stderr, ring.Add)
	}()
	go func() {
		defer readers.Done()
		var p progressParser
		scanLines(stdout, func(line string) {
			if block, ok := p.feed(line); ok {
				wd.Observe(block)
				if onProgress != nil {
					onProgress(block)
				}
			}
		})
	}()

	waitCh := make(chan error, 1)
	go func() {
		// Pipes must be drained before Wait closes them.
		readers.Wait()
		waitCh <- cmd.Wait()
	}()

	wdCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	stallCh := make(chan error, 1)
	go func() { stallCh <- wd.Run(wdCtx) }()

	grace := r.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	select {
	case err := <-waitCh:
		if err == nil {
			return nil
		}
		exit := &ExitError{ExitCode: -1, Stderr: ring.Lines(), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exit.ExitCode = ee.ExitCode()
		}
		return exit
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, grace)
		logger.Debug().Str(xglog.FieldEvent, "ffmpeg.cancelled").Msg("ffmpeg terminated on cancellation")
		return ctx.Err()
	case err := <-stallCh:
		if err == nil {
			// unreachable: wdCtx is only cancelled on return
			return nil
		}
		metrics.IncSegmentStall()
		_ = procgroup.Terminate(cmd, waitCh, grace)
		logger.Warn().
			Str(xglog.FieldEvent, "ffmpeg.stalled").
			Strs("stderr", ring.Lines()).
			Msg("ffmpeg stalled; process group killed")
		return fmt.Errorf("%w after %s", ErrStalled, r.StallTimeout)
	}
}

func scanLines(rd io.Reader, fn func(string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, rd)
}
