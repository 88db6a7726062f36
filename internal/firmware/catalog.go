package firmware

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fuslink/fuslink/internal/fus"
	"github.com/fuslink/fuslink/internal/logging"
)

const defaultCatalogURL = "https://fota-cloud-dn.ospserver.net"

// Entry is one available firmware version from the catalog.
type Entry struct {
	Version  string // normalized 4-component version string
	IsLatest bool   // true only for the first entry
	Size     int64  // advertised size in bytes, 0 when not published
}

// versionXML mirrors the manifest shape. The upgrade section may carry a
// single value element or a list; encoding/xml collects both into the
// slice, so downstream code always sees a uniform sequence. VersionInfo is
// a pointer so an entirely missing version section is distinguishable
// from an empty one.
type versionXML struct {
	XMLName  xml.Name `xml:"versioninfo"`
	Firmware struct {
		Version *struct {
			Latest  string `xml:"latest"`
			Upgrade struct {
				Value []upgradeValue `xml:"value"`
			} `xml:"upgrade"`
		} `xml:"version"`
	} `xml:"firmware"`
}

type upgradeValue struct {
	Text   string `xml:",chardata"`
	FWSize string `xml:"fwsize,attr"`
}

// Catalog fetches and parses the per-device version manifest.
type Catalog struct {
	http    *nethttp.Client
	log     *logging.Logger
	baseURL string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogURL overrides the manifest host. Used by tests.
func WithCatalogURL(u string) CatalogOption {
	return func(c *Catalog) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// NewCatalog creates a catalog client. The manifest GET is idempotent, so
// it rides a retrying HTTP client.
func NewCatalog(httpClient *nethttp.Client, log *logging.Logger, opts ...CatalogOption) *Catalog {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	c := &Catalog{
		http:    retryClient.StandardClient(),
		log:     log,
		baseURL: defaultCatalogURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListVersions returns the available firmware versions for a device,
// latest first, then the upgrade alternates in manifest order. Alternate
// entries with fewer than two path separators are placeholders and are
// filtered out.
func (c *Catalog) ListVersions(ctx context.Context, region, model string) ([]Entry, error) {
	url := fmt.Sprintf("%s/firmware/%s/%s/version.xml", c.baseURL, region, model)
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Kies2.0_FUS")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %s", fus.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		// The CDN answers 403 for unknown region/model pairs.
		return nil, fmt.Errorf("%w: HTTP %d for %s/%s", fus.ErrCatalogEmpty, resp.StatusCode, region, model)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %s", fus.ErrUnreachable, err)
	}

	var manifest versionXML
	if err := xml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %s", fus.ErrCatalogUnparseable, err)
	}
	if manifest.Firmware.Version == nil {
		return nil, fmt.Errorf("%w: manifest for %s/%s has no version section", fus.ErrCatalogEmpty, region, model)
	}
	version := manifest.Firmware.Version
	if version.Latest == "" {
		return nil, fmt.Errorf("%w: manifest for %s/%s has no latest entry", fus.ErrCatalogUnparseable, region, model)
	}

	latest, err := Normalize(version.Latest)
	if err != nil {
		return nil, err
	}
	entries := []Entry{{Version: latest, IsLatest: true}}

	for _, alt := range version.Upgrade.Value {
		if strings.Count(alt.Text, "/") < 2 {
			continue
		}
		normalized, err := Normalize(alt.Text)
		if err != nil {
			c.log.Warn().Str("entry", alt.Text).Msg("skipping unparseable alternate firmware")
			continue
		}
		size, _ := strconv.ParseInt(alt.FWSize, 10, 64)
		entries = append(entries, Entry{Version: normalized, Size: size})
	}

	c.log.Debug().
		Str("region", region).
		Str("model", model).
		Int("versions", len(entries)).
		Msg("catalog fetched")
	return entries, nil
}

// Latest returns just the normalized latest firmware version for a device.
func (c *Catalog) Latest(ctx context.Context, region, model string) (string, error) {
	entries, err := c.ListVersions(ctx, region, model)
	if err != nil {
		return "", err
	}
	return entries[0].Version, nil
}
