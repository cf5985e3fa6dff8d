package main

import (
	"fmt"
	"os/exec"
)

// ValidateExecutable resolves an executable on PATH, or validates an explicit
// override when one is given.
func ValidateExecutable(name string, override string) (string, error) {
	target := override
	if target == "" {
		target = name
	}
	resolved, err := exec.LookPath(target)
	if err != nil {
		return "", fmt.Errorf("could not find %v: %w", name, err)
	}
	Logger.Debugf("found %v: %v", name, resolved)
	return resolved, nil
}
