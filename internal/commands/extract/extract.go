// Package extract contains the kernelcache extraction pipeline.
package extract

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/grabkernel/internal/download"
	"github.com/blacktop/grabkernel/pkg/plist"
	"github.com/dustin/go-humanize"
)

const (
	manifestName = "BuildManifest.plist"
	// OTA payloads nest the restore files under AssetData/boot
	otaPrefix = "AssetData/boot/"
)

// Config is the extract command configuration.
type Config struct {
	// hardware board config (e.g. D17AP) selecting the build identity
	BoardConfig string `json:"board_config,omitempty"`
	// url to the remote IPSW/OTA zip
	URL string `json:"url,omitempty"`
	// the URL points at an OTA payload instead of a full IPSW
	IsOTA bool `json:"is_ota,omitempty"`
	// file to write the kernelcache to
	Output string `json:"output,omitempty"`
	// http proxy to use
	Proxy string `json:"proxy,omitempty"`
	// don't verify the certificate chain
	Insecure bool `json:"insecure,omitempty"`
}

// fileReader reads a single file out of a remote archive.
type fileReader interface {
	ReadFile(name string) ([]byte, error)
}

func isURL(str string) bool {
	u, err := url.Parse(str)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) verify() error {
	if len(c.BoardConfig) == 0 {
		return fmt.Errorf("no board config provided")
	}
	if !isURL(c.URL) {
		return fmt.Errorf("invalid URL provided: %s", c.URL)
	}
	if len(c.Output) == 0 {
		return fmt.Errorf("no output path provided")
	}
	dir := filepath.Dir(c.Output)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("output directory %s does not exist", dir)
	}
	probe, err := os.CreateTemp(dir, ".grabkernel")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %v", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func manifestPath(isOTA bool) string {
	if isOTA {
		return otaPrefix + manifestName
	}
	return manifestName
}

// Kernelcache pulls a single kernelcache out of a remote firmware zip and
// writes it to c.Output. Only the manifest and the kernelcache itself are
// transferred.
func Kernelcache(c *Config) (string, error) {
	if err := c.verify(); err != nil {
		return "", err
	}

	zr, err := download.NewRemoteZipReader(c.URL, &download.RemoteConfig{
		Proxy:    c.Proxy,
		Insecure: c.Insecure,
	})
	if err != nil {
		return "", fmt.Errorf("unable to open remote zip %s: %w", c.URL, err)
	}

	return kernelcacheFromZip(zr, c)
}

func kernelcacheFromZip(zr fileReader, c *Config) (string, error) {
	mpath := manifestPath(c.IsOTA)

	mdata, err := zr.ReadFile(mpath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", mpath, err)
	}

	bm, err := plist.ParseBuildManifest(mdata)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", mpath, err)
	}

	kcpath, err := bm.GetKernelCachePath(c.BoardConfig)
	if err != nil {
		return "", err
	}
	if c.IsOTA {
		kcpath = otaPrefix + kcpath
	}

	log.WithFields(log.Fields{
		"board": c.BoardConfig,
		"path":  kcpath,
	}).Info("Found kernelcache")

	data, err := zr.ReadFile(kcpath)
	if err != nil {
		return "", fmt.Errorf("failed to read kernelcache %s: %w", kcpath, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("kernelcache %s in %s is empty", kcpath, c.URL)
	}

	log.Infof("Writing %s kernelcache to %s", humanize.Bytes(uint64(len(data))), c.Output)

	// write-then-rename so a failure mid-write never leaves a truncated
	// file at the final path
	tmp := c.Output + ".download"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.Output); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename %s to %s: %w", tmp, c.Output, err)
	}

	return c.Output, nil
}
