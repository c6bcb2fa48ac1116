package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"time"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	"github.com/allisson/capvault/internal/secret"
)

// workerEnv is the environment workers inherit. Credentials travel on stdin only, never
// in the environment or the command line.
var workerEnv = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "TZ"}

// ExecInvoker runs exec:// capabilities as subprocesses. The target names the
// executable; repeated "arg" query parameters become its arguments:
//
//	exec:///usr/bin/python3?arg=/opt/capvault/workers/chat.py
//
// The worker reads one JSON document on stdin and answers {"text": ...} or plain text
// on stdout. A non-zero exit is a permanent failure; termination by a signal or by the
// attempt deadline is transient.
type ExecInvoker struct {
	waitDelay time.Duration
	stderrMax int
}

// NewExecInvoker creates an ExecInvoker. waitDelay bounds how long a killed worker's
// output pipes may stay open.
func NewExecInvoker(waitDelay time.Duration) *ExecInvoker {
	return &ExecInvoker{waitDelay: waitDelay, stderrMax: 512}
}

// Invoke runs the worker with inv on stdin.
func (e *ExecInvoker) Invoke(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	name, args, err := execCommand(d.InvocationTarget)
	if err != nil {
		return "", err
	}
	body, err := encodeRequest(inv)
	if err != nil {
		return "", err
	}
	defer secret.Zero(body)

	out, err := e.run(ctx, name, args, body)
	if err != nil {
		return "", fmt.Errorf("capability %s: %w", d.Name, err)
	}
	return decodeReply(out), nil
}

// Probe runs the probe target when one is configured, otherwise it checks that the
// worker executable exists.
func (e *ExecInvoker) Probe(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) error {
	name, args, err := execCommand(d.ProbeTarget())
	if err != nil {
		return err
	}
	if d.HealthProbe.Target == "" {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%w: %v", orchestratorDomain.ErrPermanentFailure, err)
		}
		return nil
	}

	body, err := encodeRequest(inv)
	if err != nil {
		return err
	}
	defer secret.Zero(body)

	_, err = e.run(ctx, name, args, body)
	return err
}

func (e *ExecInvoker) run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = environ()
	cmd.WaitDelay = e.waitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", orchestratorDomain.ErrTransientFailure, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was terminated by a signal.
		if exitErr.ExitCode() == -1 {
			return nil, fmt.Errorf("%w: worker terminated: %v", orchestratorDomain.ErrTransientFailure, exitErr)
		}
		return nil, fmt.Errorf("%w: worker exited with code %d: %s",
			orchestratorDomain.ErrPermanentFailure, exitErr.ExitCode(), tail(stderr.Bytes(), e.stderrMax))
	}
	return nil, fmt.Errorf("%w: %v", orchestratorDomain.ErrPermanentFailure, err)
}

// execCommand splits an exec:// target into the executable and its arguments.
// exec:///abs/path names a file; exec://name is looked up in PATH.
func execCommand(target string) (string, []string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "exec" {
		return "", nil, fmt.Errorf("%w: %q", orchestratorDomain.ErrUnsupportedTarget, target)
	}
	name := u.Host + u.Path
	if name == "" {
		return "", nil, fmt.Errorf("%w: %q", orchestratorDomain.ErrUnsupportedTarget, target)
	}
	return name, u.Query()["arg"], nil
}

func environ() []string {
	env := make([]string, 0, len(workerEnv))
	for _, key := range workerEnv {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}
