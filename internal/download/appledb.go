// Package download resolves firmware download URLs from the firmware catalog
// and opens remote IPSW/OTA zips.
package download

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/grabkernel/internal/utils"
	"github.com/ulikunitz/xz/lzma"
)

const (
	// AppleDBAPI is the firmware catalog API base URL
	AppleDBAPI = "https://api.appledb.dev"

	metadataTimeout = 30 * time.Second
)

// AuthRequiredHosts are download hosts that need an Apple developer login.
// Links pointing at them are never usable without a credential flow.
var AuthRequiredHosts = []string{
	"adcdownload.apple.com",
	"download.developer.apple.com",
	"developer.apple.com",
}

// Firmware is one build entry from the catalog (per-device or full)
type Firmware struct {
	OS         string   `json:"osStr,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Version    string   `json:"version,omitempty"`
	Build      string   `json:"buildid,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
}

// Source is one distribution channel for a firmware build
type Source struct {
	Name              string   `json:"name,omitempty"`
	Type              string   `json:"type,omitempty"`
	DeviceMap         []string `json:"deviceMap,omitempty"`
	PrerequisiteBuild string   `json:"prerequisiteBuild,omitempty"`
	Links             []Link   `json:"links,omitempty"`
}

// Link is a single download mirror within a source
type Link struct {
	URL       string `json:"url,omitempty"`
	Preferred bool   `json:"preferred,omitempty"`
	Active    bool   `json:"active,omitempty"`
}

// Config is the catalog client configuration
type Config struct {
	URL       string // catalog API base URL
	Proxy     string
	Insecure  bool
	Timeout   time.Duration
	DenyHosts []string // hosts that require authentication
}

// Client queries the firmware catalog
type Client struct {
	conf   *Config
	client *http.Client
}

// NewClient returns a catalog client for the given config
func NewClient(conf *Config) *Client {
	if conf == nil {
		conf = &Config{}
	}
	if len(conf.URL) == 0 {
		conf.URL = AppleDBAPI
	}
	if conf.Timeout == 0 {
		conf.Timeout = metadataTimeout
	}
	if conf.DenyHosts == nil {
		conf.DenyHosts = AuthRequiredHosts
	}
	return &Client{
		conf: conf,
		client: &http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				Proxy:           GetProxy(conf.Proxy),
				TLSClientConfig: &tls.Config{InsecureSkipVerify: conf.Insecure},
			},
		},
	}
}

func (c *Client) get(url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create http GET request: %v", err)
	}
	req.Header.Add("User-Agent", utils.RandomAgent())

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status: %s", res.Status)
	}

	return io.ReadAll(res.Body)
}

// decodeFirmwares unmarshals a catalog array one element at a time. The
// catalog aggregates community data, so a single wrong-shaped entry must not
// poison the entries around it.
func decodeFirmwares(data []byte) ([]Firmware, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	fws := make([]Firmware, 0, len(raw))
	for i, r := range raw {
		var fw Firmware
		if err := json.Unmarshal(r, &fw); err != nil {
			log.WithError(err).Debugf("skipping malformed catalog entry %d", i)
			continue
		}
		fws = append(fws, fw)
	}

	return fws, nil
}

// DeviceFirmwares returns the catalog's build entries for a single device.
// This is the lean endpoint; prefer it over AllFirmwares when the device
// identifier is known.
func (c *Client) DeviceFirmwares(device string) ([]Firmware, error) {
	body, err := c.get(c.conf.URL + "/device/" + device)
	if err != nil {
		return nil, err
	}

	fws, err := decodeFirmwares(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode device firmware list: %v", err)
	}

	log.Debugf("catalog returned %d firmware(s) for %s", len(fws), device)

	return fws, nil
}

// AllFirmwares returns the full catalog for all devices. The response body is
// LZMA compressed.
func (c *Client) AllFirmwares() ([]Firmware, error) {
	body, err := c.get(c.conf.URL + "/devices")
	if err != nil {
		return nil, err
	}

	lr, err := lzma.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress full catalog: %v", err)
	}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress full catalog: %v", err)
	}

	fws, err := decodeFirmwares(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode full catalog: %v", err)
	}

	log.Debugf("full catalog contains %d firmware entries", len(fws))

	return fws, nil
}
