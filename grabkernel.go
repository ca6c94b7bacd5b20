// Package grabkernel downloads the kernelcache for the running device's OS
// build without downloading the whole firmware image.
package grabkernel

import (
	"github.com/apex/log"
	"github.com/blacktop/grabkernel/internal/commands/extract"
	"github.com/blacktop/grabkernel/internal/device"
	"github.com/blacktop/grabkernel/internal/download"
)

// GrabKernel resolves the host device's firmware and writes its kernelcache
// to outputPath. It returns 0 on success and nonzero on failure, mirroring
// the C convention of the original libgrabkernel entry point. Research
// kernels are not distributed through the public catalog, so
// researchKernel=true always fails.
func GrabKernel(outputPath string, researchKernel bool) int {
	if researchKernel {
		log.Error("research kernels are not supported")
		return 1
	}

	model, err := device.ModelIdentifier()
	if err != nil {
		log.WithError(err).Error("failed to get model identifier")
		return 1
	}
	boardConfig, err := device.BoardConfig()
	if err != nil {
		log.WithError(err).Error("failed to get board config")
		return 1
	}
	build, err := device.Build()
	if err != nil {
		log.WithError(err).Error("failed to get OS build")
		return 1
	}

	client := download.NewClient(nil)

	fw, err := client.Resolve(&download.Query{
		Device: model,
		Build:  build,
		Model:  model,
	})
	if err != nil {
		log.WithError(err).Errorf("failed to resolve firmware for %s (%s)", model, build)
		return 1
	}

	if _, err := extract.Kernelcache(&extract.Config{
		BoardConfig: boardConfig,
		URL:         fw.URL,
		IsOTA:       fw.IsOTA,
		Output:      outputPath,
	}); err != nil {
		log.WithError(err).Error("failed to extract kernelcache")
		return 1
	}

	return 0
}
