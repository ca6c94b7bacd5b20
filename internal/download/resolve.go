package download

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/apex/log"
	"github.com/blacktop/grabkernel/internal/utils"
	semver "github.com/hashicorp/go-version"
)

// ErrNotFound means the catalog had no downloadable firmware for the query
var ErrNotFound = errors.New("no downloadable firmware found")

// Query identifies one firmware build for one device
type Query struct {
	OS     string // OS name as the catalog spells it (e.g. iOS); empty matches any
	Device string // per-device catalog identifier (e.g. iPhone14,2)
	Build  string // build number (e.g. 21A5248v)
	Model  string // model identifier matched against source deviceMaps
}

// RemoteFirmware is a resolved firmware download
type RemoteFirmware struct {
	URL   string
	IsOTA bool
}

func (q *Query) verify() error {
	if len(q.Device) == 0 || len(q.Build) == 0 {
		return fmt.Errorf("firmware query requires a device and build: %+v", q)
	}
	if len(q.Model) == 0 {
		q.Model = q.Device
	}
	return nil
}

func (c *Client) linkUsable(l Link) bool {
	if !l.Active {
		return false
	}
	u, err := url.Parse(l.URL)
	if err != nil || len(u.Host) == 0 {
		return false
	}
	return !utils.StrSliceHas(c.conf.DenyHosts, u.Hostname())
}

// BestLink scans sources in catalog order and returns the first usable link.
// OTA sources with a prerequisite build are delta updates against a prior
// build we cannot guarantee, so they are skipped.
func (c *Client) BestLink(sources []Source, model string) (*RemoteFirmware, error) {
	for _, src := range sources {
		if src.Type != "ipsw" && src.Type != "ota" {
			continue
		}
		if src.Type == "ota" && len(src.PrerequisiteBuild) > 0 {
			continue
		}
		if !utils.StrSliceHas(src.DeviceMap, model) {
			continue
		}
		for _, link := range src.Links {
			if !c.linkUsable(link) {
				continue
			}
			log.WithFields(log.Fields{
				"type":   src.Type,
				"source": src.Name,
				"url":    link.URL,
			}).Debug("Selected firmware link")
			return &RemoteFirmware{
				URL:   link.URL,
				IsOTA: src.Type == "ota",
			}, nil
		}
	}
	return nil, ErrNotFound
}

// Resolve finds a download URL for the queried build. It tries the lean
// per-device endpoint first and falls back to the full catalog, which is
// slower but occasionally knows builds the device summary is missing.
func (c *Client) Resolve(q *Query) (*RemoteFirmware, error) {
	if err := q.verify(); err != nil {
		return nil, err
	}

	fws, err := c.DeviceFirmwares(q.Device)
	if err != nil {
		log.WithError(err).Debugf("failed to get firmware list for %s", q.Device)
	}
	for _, fw := range fws {
		if fw.Build != q.Build {
			continue
		}
		if len(q.OS) > 0 && len(fw.OS) > 0 && fw.OS != q.OS {
			continue
		}
		if rf, err := c.BestLink(fw.Sources, q.Model); err == nil {
			return rf, nil
		}
	}

	log.Debugf("build %s not found via device endpoint; searching the full catalog", q.Build)

	fws, err = c.AllFirmwares()
	if err != nil {
		return nil, fmt.Errorf("failed to get full firmware catalog: %w", err)
	}
	for _, fw := range fws {
		if fw.Identifier != q.Device || fw.Build != q.Build {
			continue
		}
		if len(q.OS) > 0 && len(fw.OS) > 0 && fw.OS != q.OS {
			continue
		}
		// several catalog entries can share an (identifier, build) pair with
		// different source sets; keep scanning until one yields a link
		if rf, err := c.BestLink(fw.Sources, q.Model); err == nil {
			return rf, nil
		}
	}

	return nil, fmt.Errorf("%s build %s for %s: %w", q.Device, q.Build, q.Model, ErrNotFound)
}

// LatestBuild returns the build number of the newest osStr firmware version
// the catalog lists for a device.
func (c *Client) LatestBuild(osStr, device string) (string, error) {
	fws, err := c.DeviceFirmwares(device)
	if err != nil {
		return "", err
	}

	var latest *semver.Version
	var build string
	for _, fw := range fws {
		if len(osStr) > 0 && len(fw.OS) > 0 && fw.OS != osStr {
			continue
		}
		v, err := semver.NewVersion(fw.Version)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
			build = fw.Build
		}
	}
	if len(build) == 0 {
		return "", fmt.Errorf("latest build for %s: %w", device, ErrNotFound)
	}

	log.WithFields(log.Fields{
		"device":  device,
		"version": latest.Original(),
		"build":   build,
	}).Debug("Latest firmware")

	return build, nil
}
