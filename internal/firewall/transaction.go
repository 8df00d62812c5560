package firewall

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ChunkSize is the maximum number of addresses in one mutation statement.
const ChunkSize = 512

// Step is one command invocation of a transaction. When Input is set it
// is fed on stdin and the whole step is one atomic batch.
type Step struct {
	Command string
	Args    []string
	Input   string
}

// CommandLine renders the command and its arguments, shell-quoted.
func (s Step) CommandLine() string {
	return commandLine(s.Command, s.Args)
}

func (s Step) mergeable(o Step) bool {
	return s.Input != "" && o.Input != "" && s.CommandLine() == o.CommandLine()
}

// Transaction is an ordered list of steps. Apply stops at the first failure.
type Transaction struct {
	Backend string
	Kind    string
	Steps   []Step
}

// Transaction kinds.
const (
	KindBootstrap = "bootstrap"
	KindAdd       = "add"
	KindRemove    = "remove"
)

// Empty reports whether the transaction has nothing to run.
func (t *Transaction) Empty() bool {
	return t == nil || len(t.Steps) == 0
}

// Merge appends the steps of o. Consecutive stdin steps for the same
// command are joined into one invocation so they stay a single batch.
func (t *Transaction) Merge(o *Transaction) *Transaction {
	if o.Empty() {
		return t
	}
	for _, s := range o.Steps {
		if n := len(t.Steps); n > 0 && t.Steps[n-1].mergeable(s) {
			t.Steps[n-1].Input += s.Input
			continue
		}
		t.Steps = append(t.Steps, s)
	}
	return t
}

// Render returns the would-be commands and scripts, for dry runs.
func (t *Transaction) Render() string {
	if t.Empty() {
		return ""
	}
	var b strings.Builder
	for _, s := range t.Steps {
		if s.Input == "" {
			b.WriteString(s.CommandLine())
			b.WriteByte('\n')
			continue
		}
		fmt.Fprintf(&b, "# %s <<EOF\n", s.CommandLine())
		b.WriteString(s.Input)
		if !strings.HasSuffix(s.Input, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("# EOF\n")
	}
	return b.String()
}

// BackendError is a failed backend command.
type BackendError struct {
	Command string
	Output  string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %s failed: %v: %s", e.Command, e.Err, strings.TrimSpace(e.Output))
}

func (e *BackendError) Unwrap() error { return e.Err }

// applySteps runs every step of tx in order and aborts on the first error.
func applySteps(ctx context.Context, runner CommandRunner, tx *Transaction) error {
	if tx.Empty() {
		return nil
	}
	for _, s := range tx.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if s.Input != "" {
			err = runner.RunInput(ctx, s.Input, s.Command, s.Args...)
		} else {
			err = runner.Run(ctx, s.Command, s.Args...)
		}
		if err != nil {
			return newBackendError(s.CommandLine(), err)
		}
	}
	return nil
}

func newBackendError(command string, err error) *BackendError {
	be := &BackendError{Command: command, Err: err}
	var ee *ExitError
	if errors.As(err, &ee) {
		be.Output = ee.Output
		be.Err = fmt.Errorf("exit status %d", ee.Code)
	}
	return be
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func addrStrings(addrs []netip.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:,=@+", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
