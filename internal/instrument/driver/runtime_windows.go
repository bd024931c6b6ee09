//go:build windows

package driver

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindRuntime locates the acquisition runtime binary. Next to the executable
// and the working directory, bin/<runtime>/windows/x64/<runtime>.exe is
// searched before falling back to PATH.
func FindRuntime(runtime string) (string, error) {
	var lookup []string

	exePath, err := os.Executable()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get executable path: %w", err))
	}

	lookup = append(lookup, filepath.Dir(exePath))

	wd, err := os.Getwd()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get current working directory: %w", err))
	}

	lookup = append(lookup, wd)

	for _, exeDir := range lookup {
		binPath := filepath.Join(exeDir, "bin", runtime, "windows", "x64", fmt.Sprintf("%s.exe", runtime))
		if _, err = os.Stat(binPath); err != nil {
			continue // continue to next directory
		}

		return binPath, nil
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError(runtime, fmt.Errorf("not found in %v or PATH", lookup))
		}
		return "", NewRuntimeError(runtime, err)
	}

	return binPath, nil
}
