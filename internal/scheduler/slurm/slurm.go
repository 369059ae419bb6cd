// Package slurm talks to a SLURM-like batch scheduler through its
// command-line tools.
package slurm

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/scheduler"
)

// Name identifies this backend in ledger rows and engine config.
const Name = "slurm"

type client struct{}

// New returns a scheduler client shelling out to sbatch, squeue,
// sacct and scancel.
func New() scheduler.Client {
	return &client{}
}

func (c *client) Submit(ctx context.Context, req *scheduler.SubmitRequest) (string, error) {
	args := []string{"--parsable"}

	if req.Name != "" {
		args = append(args, "--job-name", req.Name)
	}
	if req.WorkDir != "" {
		args = append(args, "--chdir", req.WorkDir)
	}
	if req.Stdout != "" {
		args = append(args, "--output", req.Stdout)
	}
	if req.Stderr != "" {
		args = append(args, "--error", req.Stderr)
	}

	args = append(args, "--wrap", shellQuote(req.Command))

	out, err := exec.CommandContext(ctx, "sbatch", args...).Output()
	if err != nil {
		return "", errors.Wrap(err, "sbatch failed")
	}

	// --parsable prints "jobid" or "jobid;cluster".
	id := strings.SplitN(strings.TrimSpace(string(out)), ";", 2)[0]
	if _, err := strconv.Atoi(id); err != nil {
		return "", errors.Errorf("unparseable sbatch output: %q", out)
	}

	return id, nil
}

func (c *client) Status(ctx context.Context, handle string) (*scheduler.Status, error) {
	// squeue covers pending and running jobs.
	out, err := exec.CommandContext(
		ctx, "squeue", "-h", "-j", handle, "-o", "%T",
	).Output()
	if err == nil {
		switch state := strings.TrimSpace(string(out)); state {
		case "":
			// fall through to sacct
		case "PENDING", "CONFIGURING", "SUSPENDED":
			return &scheduler.Status{State: scheduler.StateQueued}, nil
		case "RUNNING", "COMPLETING":
			return &scheduler.Status{State: scheduler.StateRunning}, nil
		}
	}

	// sacct covers jobs that have left the queue.
	out, err = exec.CommandContext(
		ctx, "sacct", "-n", "-P", "-j", handle, "-o", "State,ExitCode",
	).Output()
	if err != nil {
		return nil, errors.Wrap(err, "sacct failed")
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return &scheduler.Status{State: scheduler.StateNotFound}, nil
	}

	state, code, err := parseAccounting(lines[0])
	if err != nil {
		return nil, err
	}

	switch {
	case state == "PENDING":
		return &scheduler.Status{State: scheduler.StateQueued}, nil
	case state == "RUNNING":
		return &scheduler.Status{State: scheduler.StateRunning}, nil
	case state == "COMPLETED":
		return &scheduler.Status{State: scheduler.StateCompleted, ExitCode: code}, nil
	default:
		// FAILED, CANCELLED, TIMEOUT, OUT_OF_MEMORY, NODE_FAIL...
		if code == 0 {
			code = 1
		}
		return &scheduler.Status{State: scheduler.StateCompleted, ExitCode: code}, nil
	}
}

func (c *client) Kill(ctx context.Context, handle string) error {
	if out, err := exec.CommandContext(ctx, "scancel", handle).CombinedOutput(); err != nil {
		return errors.Wrapf(err, "scancel %v failed: %s", handle, out)
	}
	return nil
}

// shellQuote renders argv as one shell command line, each element
// single-quoted, so the wrap shell re-parses exactly the submitted
// argv instead of re-splitting the embedded script on whitespace.
func shellQuote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// parseAccounting parses one "State|ExitCode" sacct line, where
// ExitCode is "code:signal".
func parseAccounting(line string) (string, int, error) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 2 {
		return "", 0, errors.Errorf("unparseable sacct line: %q", line)
	}

	// Cancelled entries read "CANCELLED by <uid>".
	state := strings.Fields(parts[0])[0]

	codePart := strings.SplitN(parts[1], ":", 2)[0]
	code, err := strconv.Atoi(codePart)
	if err != nil {
		return "", 0, errors.Errorf("unparseable sacct exit code: %q", parts[1])
	}

	return state, code, nil
}
