// Package plist parses the property lists embedded in firmware images.
package plist

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/blacktop/go-plist"
)

// BuildManifest is the BuildManifest.plist object found in IPSWs/OTAs
type BuildManifest struct {
	BuildIdentities       []BuildIdentity `plist:"BuildIdentities,omitempty" json:"build_identities,omitempty"`
	ManifestVersion       int             `plist:"ManifestVersion,omitempty" json:"manifest_version,omitempty"`
	ProductBuildVersion   string          `plist:"ProductBuildVersion,omitempty" json:"product_build_version,omitempty"`
	ProductVersion        string          `plist:"ProductVersion,omitempty" json:"product_version,omitempty"`
	SupportedProductTypes []string        `plist:"SupportedProductTypes,omitempty" json:"supported_product_types,omitempty"`
}

func (b *BuildManifest) String() string {
	var out string
	out += "[BuildManifest]\n"
	out += "===============\n"
	out += fmt.Sprintf("  ManifestVersion:       %d\n", b.ManifestVersion)
	out += fmt.Sprintf("  ProductBuildVersion:   %s\n", b.ProductBuildVersion)
	out += fmt.Sprintf("  ProductVersion:        %s\n", b.ProductVersion)
	out += fmt.Sprintf("  SupportedProductTypes: %v\n", b.SupportedProductTypes)
	return out
}

type BuildIdentity struct {
	Info     IdentityInfo                `plist:"Info,omitempty" json:"info"`
	Manifest map[string]IdentityManifest `plist:"Manifest,omitempty" json:"manifest,omitempty"`
}

type IdentityInfo struct {
	BuildNumber     string `json:"build_number,omitempty"`
	DeviceClass     string `json:"device_class,omitempty"`
	RestoreBehavior string `json:"restore_behavior,omitempty"`
	Variant         string `json:"variant,omitempty"`
}

type IdentityManifest struct {
	Digest []byte         `plist:"Digest,omitempty" json:"digest,omitempty"`
	Info   map[string]any `plist:"Info,omitempty" json:"info,omitempty"`
}

// ParseBuildManifest parses the BuildManifest.plist
func ParseBuildManifest(data []byte) (*BuildManifest, error) {
	bm := &BuildManifest{}
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(bm); err != nil {
		return nil, fmt.Errorf("failed to decode BuildManifest.plist: %w", err)
	}
	return bm, nil
}

// GetKernelCachePath returns the archive-relative kernelcache path for a
// board config. Research variants ship a different kernel and are skipped;
// DeviceClass casing differs between manifests so the comparison ignores it.
func (b *BuildManifest) GetKernelCachePath(boardConfig string) (string, error) {
	for _, bID := range b.BuildIdentities {
		if strings.HasPrefix(bID.Info.Variant, "Research") {
			continue
		}
		if !strings.EqualFold(bID.Info.DeviceClass, boardConfig) {
			continue
		}
		kc, ok := bID.Manifest["KernelCache"]
		if !ok {
			continue
		}
		path, ok := kc.Info["Path"].(string)
		if !ok || len(path) == 0 {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to find kernelcache for board config %s in BuildManifest", boardConfig)
}
