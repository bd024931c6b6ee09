//go:build !windows

package driver

import (
	"fmt"
	"os/exec"
)

// FindRuntime locates the acquisition runtime binary in PATH. An explicit
// path is returned as-is when it resolves to an executable.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("not found in PATH: %w", err))
	}

	return binPath, nil
}
