package firewall

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCommandRunner is a testify mock of CommandRunner. Calls are matched
// on the binary followed by its arguments; RunInput prepends the script
// fed on stdin. The context is not recorded.
type MockCommandRunner struct {
	mock.Mock
}

// mockResult unpacks a (value, error) return, tolerating a nil value.
func mockResult[T any](args mock.Arguments) (T, error) {
	var zero T
	if args.Get(0) == nil {
		return zero, args.Error(1)
	}
	return args.Get(0).(T), args.Error(1)
}

func flatten(head []string, args []string) []any {
	out := make([]any, 0, len(head)+len(args))
	for _, s := range head {
		out = append(out, s)
	}
	for _, s := range args {
		out = append(out, s)
	}
	return out
}

func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return m.Called(flatten([]string{name}, args)...).Error(0)
}

func (m *MockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return mockResult[[]byte](m.Called(flatten([]string{name}, args)...))
}

func (m *MockCommandRunner) RunInput(ctx context.Context, input string, name string, args ...string) error {
	return m.Called(flatten([]string{input, name}, args)...).Error(0)
}
