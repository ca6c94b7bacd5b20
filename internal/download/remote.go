package download

import (
	"archive/zip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/blacktop/ranger"
	"github.com/pkg/errors"

	"github.com/blacktop/grabkernel/internal/utils"
)

// bulk transfers get a much longer deadline than catalog metadata calls
const bulkTimeout = 10 * time.Minute

// RemoteConfig is the remote reader config
type RemoteConfig struct {
	Proxy    string
	Insecure bool
}

// RemoteZip is a ZIP at a URL, readable one file at a time over ranged
// HTTP requests. The archive itself is never downloaded.
type RemoteZip struct {
	zr *zip.Reader
}

// NewRemoteZipReader returns a new remote zip file reader
func NewRemoteZipReader(zipURL string, config *RemoteConfig) (*RemoteZip, error) {

	url, err := url.Parse(zipURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse url")
	}

	reader, err := ranger.NewReader(&ranger.HTTPRanger{
		URL:       url,
		UserAgent: utils.RandomAgent(),
		Client: &http.Client{
			Timeout: bulkTimeout,
			Transport: &http.Transport{
				Proxy:           GetProxy(config.Proxy),
				TLSClientConfig: &tls.Config{InsecureSkipVerify: config.Insecure},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ranger reader")
	}

	length, err := reader.Length()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reader length")
	}

	zr, err := zip.NewReader(reader, length)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zip reader")
	}

	return &RemoteZip{zr: zr}, nil
}

// ReadFile reads a single named file out of the remote zip
func (r *RemoteZip) ReadFile(name string) ([]byte, error) {
	for _, f := range r.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s in remote zip", name)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s from remote zip", name)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found in remote zip", name)
}
