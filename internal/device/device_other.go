//go:build !darwin

package device

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("device identity probes are not supported on " + runtime.GOOS)

// ModelIdentifier returns the device's marketing model identifier (e.g. iPhone14,2)
func ModelIdentifier() (string, error) {
	return "", errUnsupported
}

// BoardConfig returns the device's hardware board config (e.g. D63AP)
func BoardConfig() (string, error) {
	return "", errUnsupported
}

// Build returns the running OS build number (e.g. 21A5248v)
func Build() (string, error) {
	return "", errUnsupported
}
