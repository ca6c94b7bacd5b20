//go:build darwin

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ModelIdentifier returns the device's marketing model identifier (e.g. iPhone14,2)
func ModelIdentifier() (string, error) {
	out, err := unix.Sysctl("hw.product")
	if err != nil {
		return "", fmt.Errorf("failed to get hw.product: %w", err)
	}
	return out, nil
}

// BoardConfig returns the device's hardware board config (e.g. D63AP)
func BoardConfig() (string, error) {
	out, err := unix.Sysctl("hw.target")
	if err != nil {
		return "", fmt.Errorf("failed to get hw.target: %w", err)
	}
	return out, nil
}

// Build returns the running OS build number (e.g. 21A5248v)
func Build() (string, error) {
	out, err := unix.Sysctl("kern.osversion")
	if err != nil {
		return "", fmt.Errorf("failed to get kern.osversion: %w", err)
	}
	return out, nil
}
