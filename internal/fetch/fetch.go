// Package fetch retrieves Google Static Maps tiles over HTTP with a local
// disk cache and decodes them into RGB rasters. It implements the engine's
// TileProvider contract.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/internal/grid"
)

const baseURL = "https://maps.googleapis.com/maps/api/staticmap"

// keyFileName is the fallback API key file inside the cache directory.
const keyFileName = "api_key.txt"

// Options configure a Client.
type Options struct {
	APIKey   string
	CacheDir string        // empty disables caching
	Timeout  time.Duration // per-request; zero means 5s
	BaseURL  string        // override for tests; defaults to the Google API
	Logger   *logrus.Logger
}

// Client fetches satellite tiles from the Google Static Maps API.
type Client struct {
	http     *http.Client
	key      string
	cacheDir string
	baseURL  string
	log      *logrus.Logger
}

// New returns a client. The cache directory is created if caching is
// enabled. An empty API key is rejected up front rather than surfacing as a
// per-tile HTTP error.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("fetch: no API key configured")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("fetch: create cache dir: %w", err)
		}
	}
	base := opts.BaseURL
	if base == "" {
		base = baseURL
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		key:      opts.APIKey,
		cacheDir: opts.CacheDir,
		baseURL:  base,
		log:      log,
	}, nil
}

// ReadKeyFile reads the API key stored in dir/api_key.txt.
func ReadKeyFile(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return "", fmt.Errorf("fetch: read key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Tile returns the decoded raw tile for the request, from cache when
// possible. The raster is scale*resolution pixels square with the provider's
// logo band still present; the caller crops the margin.
func (c *Client) Tile(ctx context.Context, req grid.Request) (*compose.Raster, error) {
	if c.cacheDir != "" {
		if raster, ok := c.readCache(req); ok {
			return raster, nil
		}
	}

	data, err := c.download(ctx, req)
	if err != nil {
		return nil, err
	}

	raster, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("fetch: decode tile at %.6f,%.6f: %w", req.Center.Lat, req.Center.Lon, err)
	}

	if c.cacheDir != "" {
		c.writeCache(req, data)
	}
	return raster, nil
}

// URL builds the Static Maps request URL: a satellite image without labels,
// centered on the request point.
func (c *Client) URL(req grid.Request) string {
	q := url.Values{}
	q.Set("center", fmt.Sprintf("%.6f,%.6f", req.Center.Lat, req.Center.Lon))
	q.Set("zoom", fmt.Sprintf("%d", req.Zoom))
	q.Set("scale", fmt.Sprintf("%d", req.Scale))
	q.Set("size", fmt.Sprintf("%dx%d", req.Resolution, req.Resolution))
	q.Set("maptype", "satellite")
	q.Set("style", "element:labels|visibility:off")
	q.Set("key", c.key)
	return c.baseURL + "?" + q.Encode()
}

func (c *Client) download(ctx context.Context, req grid.Request) ([]byte, error) {
	u := c.URL(req)
	c.log.WithFields(logrus.Fields{
		"lat":  fmt.Sprintf("%.6f", req.Center.Lat),
		"lon":  fmt.Sprintf("%.6f", req.Center.Lon),
		"zoom": req.Zoom,
	}).Debug("fetching tile")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: HTTP %d for tile at %.6f,%.6f", resp.StatusCode, req.Center.Lat, req.Center.Lon)
	}
	return io.ReadAll(resp.Body)
}

// cacheName is the on-disk name for a fetched tile, keyed by everything that
// determines the image content.
func cacheName(req grid.Request) string {
	return fmt.Sprintf("image_lat=%.6f_lon=%.6f_zoom=%d_scale=%d_size=%d.png",
		req.Center.Lat, req.Center.Lon, req.Zoom, req.Scale, req.Resolution)
}

func (c *Client) readCache(req grid.Request) (*compose.Raster, bool) {
	path := filepath.Join(c.cacheDir, cacheName(req))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	raster, err := decode(data)
	if err != nil {
		c.log.WithField("file", path).WithError(err).Warn("discarding unreadable cached tile")
		os.Remove(path)
		return nil, false
	}
	c.log.WithField("file", filepath.Base(path)).Debug("tile served from cache")
	return raster, true
}

func (c *Client) writeCache(req grid.Request, data []byte) {
	path := filepath.Join(c.cacheDir, cacheName(req))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.log.WithField("file", path).WithError(err).Warn("could not cache tile")
	}
}

// decode sniffs PNG or JPEG and converts to an RGB raster.
func decode(data []byte) (*compose.Raster, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}):
		img, err = png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unrecognized image format")
	}
	if err != nil {
		return nil, err
	}
	return compose.FromImage(img), nil
}
