package firewall

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Run executes a command without capturing output.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return exitError(name, args, out, err)
}

// Output executes a command and returns its standard output.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, exitError(name, args, stderr.Bytes(), err)
	}
	return out, nil
}

// RunInput executes a command with input via stdin.
func (r *RealCommandRunner) RunInput(ctx context.Context, input string, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	out, err := cmd.CombinedOutput()
	return exitError(name, args, out, err)
}

func exitError(name string, args []string, out []byte, err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{
			Command: commandLine(name, args),
			Code:    ee.ExitCode(),
			Output:  string(out),
		}
	}
	return err
}

// IsExitError reports whether err is a non-zero exit rather than a failure
// to start the command.
func IsExitError(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}
