// Package testutil holds helpers shared by tests that touch the host.
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// VMEnv enables tests that mutate the real packet filter.
const VMEnv = "ORIGINGUARD_VM_TEST"

// RequireVM skips the test unless VMEnv is set, the process runs as root
// and every named tool is on PATH. Such tests change live firewall state
// and belong in a disposable VM.
func RequireVM(t *testing.T, tools ...string) {
	t.Helper()
	if os.Getenv(VMEnv) == "" {
		t.Skipf("Skipping test: requires %s environment", VMEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("Skipping test: %s not found", tool)
		}
	}
}
