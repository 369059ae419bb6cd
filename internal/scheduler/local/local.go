// Package local runs analysis jobs as detached processes on the
// machine itself, for engines that bypass the batch scheduler.
package local

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/scheduler"
)

// Name identifies this backend in ledger rows and engine config.
const Name = "local"

type client struct{}

// New returns a scheduler client launching detached local
// processes. The process outlives the strand invocation; the
// reconciler learns the outcome from the exit-code marker, with
// pid liveness as the fallback.
func New() scheduler.Client {
	return &client{}
}

func (c *client) Submit(ctx context.Context, req *scheduler.SubmitRequest) (string, error) {
	if len(req.Command) == 0 {
		return "", errors.New("empty command")
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if req.Stdout != "" {
		f, err := os.OpenFile(req.Stdout, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return "", errors.Wrap(err, "open stdout log")
		}
		defer f.Close()
		cmd.Stdout = f
	}
	if req.Stderr != "" {
		f, err := os.OpenFile(req.Stderr, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return "", errors.Wrap(err, "open stderr log")
		}
		defer f.Close()
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return "", errors.Wrap(err, "start process")
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return "", errors.Wrap(err, "detach process")
	}

	return strconv.Itoa(pid), nil
}

func (c *client) Status(ctx context.Context, handle string) (*scheduler.Status, error) {
	pid, err := strconv.Atoi(handle)
	if err != nil {
		return nil, errors.Errorf("invalid pid handle: %q", handle)
	}

	// Signal 0 probes existence without touching the process.
	err = syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return &scheduler.Status{State: scheduler.StateRunning}, nil
	case errors.Is(err, syscall.EPERM):
		// Alive but owned by someone else.
		return &scheduler.Status{State: scheduler.StateRunning}, nil
	default:
		// Detached processes leave no exit code behind; the
		// reconciler's exit-code marker is the completion signal.
		return &scheduler.Status{State: scheduler.StateNotFound}, nil
	}
}

func (c *client) Kill(ctx context.Context, handle string) error {
	pid, err := strconv.Atoi(handle)
	if err != nil {
		return errors.Errorf("invalid pid handle: %q", handle)
	}

	// Negative pid signals the whole session started at Submit.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return errors.Wrapf(err, "kill pid %v", pid)
	}

	return nil
}
