// SPDX-License-Identifier: MIT

package hardware

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/aleczinn/loki-sub000/internal/procgroup"
)

// CommandRunner executes a short-lived command and collects its output.
// Implementations must return once ctx is done, killing the process.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands in their own process group. On cancellation the
// whole group is terminated, escalating to SIGKILL after Grace.
type ExecRunner struct {
	Grace time.Duration
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- the binary path comes from operator configuration
	cmd := exec.Command(name, args...)
	procgroup.Set(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		return stdout.Bytes(), stderr.Bytes(), err
	case <-ctx.Done():
		grace := r.Grace
		if grace <= 0 {
			grace = 500 * time.Millisecond
		}
		_ = procgroup.Terminate(cmd, waitCh, grace)
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	}
}
