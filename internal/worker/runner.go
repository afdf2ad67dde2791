package worker

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"
)

// Runner abstracts worker process execution for testability. Run launches
// the binary, discards stdout (all structured results are file-based), and
// returns whatever the process wrote to stderr along with the process error.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) (stderr []byte, err error)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Bound the post-cancel wait so a worker child holding the stderr pipe
	// cannot stall the invocation indefinitely.
	cmd.WaitDelay = 10 * time.Second
	err := cmd.Run()
	return stderr.Bytes(), err
}
