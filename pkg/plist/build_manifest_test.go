package plist

import (
	"strings"
	"testing"
)

type testIdentity struct {
	variant     string
	deviceClass string
	kcPath      string
}

func buildManifestPlist(idents []testIdentity) []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>BuildIdentities</key>
	<array>`)
	for _, id := range idents {
		sb.WriteString(`
		<dict>
			<key>Info</key>
			<dict>
				<key>DeviceClass</key>
				<string>` + id.deviceClass + `</string>
				<key>Variant</key>
				<string>` + id.variant + `</string>
			</dict>
			<key>Manifest</key>
			<dict>`)
		if len(id.kcPath) > 0 {
			sb.WriteString(`
				<key>KernelCache</key>
				<dict>
					<key>Info</key>
					<dict>
						<key>Path</key>
						<string>` + id.kcPath + `</string>
					</dict>
				</dict>`)
		}
		sb.WriteString(`
			</dict>
		</dict>`)
	}
	sb.WriteString(`
	</array>
	<key>ManifestVersion</key>
	<integer>1</integer>
	<key>ProductBuildVersion</key>
	<string>21A5248v</string>
	<key>ProductVersion</key>
	<string>17.0</string>
</dict>
</plist>`)
	return []byte(sb.String())
}

func TestParseBuildManifest(t *testing.T) {
	bm, err := ParseBuildManifest(buildManifestPlist([]testIdentity{
		{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
	}))
	if err != nil {
		t.Fatalf("ParseBuildManifest() error = %v", err)
	}
	if bm.ProductBuildVersion != "21A5248v" {
		t.Errorf("ProductBuildVersion = %s, want 21A5248v", bm.ProductBuildVersion)
	}
	if len(bm.BuildIdentities) != 1 {
		t.Fatalf("got %d build identities, want 1", len(bm.BuildIdentities))
	}
	if bm.BuildIdentities[0].Info.DeviceClass != "d63ap" {
		t.Errorf("DeviceClass = %s, want d63ap", bm.BuildIdentities[0].Info.DeviceClass)
	}
}

func TestParseBuildManifestGarbage(t *testing.T) {
	if _, err := ParseBuildManifest([]byte("not a plist")); err == nil {
		t.Fatal("ParseBuildManifest() expected error for garbage input")
	}
}

func TestGetKernelCachePath(t *testing.T) {
	tests := []struct {
		name    string
		idents  []testIdentity
		board   string
		want    string
		wantErr bool
	}{
		{
			name: "case-insensitive board match",
			idents: []testIdentity{
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
			},
			board: "D63AP",
			want:  "kernelcache.release.iphone14",
		},
		{
			name: "research variant is skipped",
			idents: []testIdentity{
				{variant: "Research Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.research.iphone14"},
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
			},
			board: "d63ap",
			want:  "kernelcache.release.iphone14",
		},
		{
			name: "other boards are skipped",
			idents: []testIdentity{
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d64ap", kcPath: "kernelcache.release.iphone14b"},
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
			},
			board: "d63ap",
			want:  "kernelcache.release.iphone14",
		},
		{
			name: "identity without kernelcache entry is skipped",
			idents: []testIdentity{
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap"},
				{variant: "Customer Upgrade Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
			},
			board: "d63ap",
			want:  "kernelcache.release.iphone14",
		},
		{
			name: "only research identities",
			idents: []testIdentity{
				{variant: "Research Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.research.iphone14"},
			},
			board:   "d63ap",
			wantErr: true,
		},
		{
			name: "unknown board",
			idents: []testIdentity{
				{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
			},
			board:   "j310ap",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm, err := ParseBuildManifest(buildManifestPlist(tt.idents))
			if err != nil {
				t.Fatalf("ParseBuildManifest() error = %v", err)
			}
			got, err := bm.GetKernelCachePath(tt.board)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("GetKernelCachePath() = %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetKernelCachePath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetKernelCachePath() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetKernelCachePathIdempotent(t *testing.T) {
	bm, err := ParseBuildManifest(buildManifestPlist([]testIdentity{
		{variant: "Customer Erase Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
		{variant: "Customer Upgrade Install (IPSW)", deviceClass: "d63ap", kcPath: "kernelcache.release.iphone14"},
	}))
	if err != nil {
		t.Fatalf("ParseBuildManifest() error = %v", err)
	}
	first, err := bm.GetKernelCachePath("d63ap")
	if err != nil {
		t.Fatalf("GetKernelCachePath() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := bm.GetKernelCachePath("d63ap")
		if err != nil {
			t.Fatalf("GetKernelCachePath() run %d error = %v", i, err)
		}
		if got != first {
			t.Errorf("GetKernelCachePath() run %d = %s, want %s", i, got, first)
		}
	}
}

func TestBuildManifestString(t *testing.T) {
	bm, err := ParseBuildManifest(buildManifestPlist(nil))
	if err != nil {
		t.Fatalf("ParseBuildManifest() error = %v", err)
	}
	s := bm.String()
	for _, want := range []string{"21A5248v", "17.0"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %s", s, want)
		}
	}
}
