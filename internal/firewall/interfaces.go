package firewall

import (
	"context"
	"fmt"
	"strings"
)

// CommandRunner abstracts command execution so backends can be tested
// without touching the host firewall.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunInput(ctx context.Context, input string, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes actual commands.
// Methods are implemented in command.go.
type RealCommandRunner struct{}

// DefaultCommandRunner is the default command runner.
var DefaultCommandRunner CommandRunner = &RealCommandRunner{}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, out)
}
