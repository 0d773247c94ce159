// Package region orchestrates the pipeline from a query box to a composite
// raster: box normalization, grid planning, parallel tile retrieval through a
// TileProvider, margin cropping, and composition.
package region

import (
	"context"
	"fmt"
	"sync"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/internal/grid"
	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// Box is a query region, either in pixel space (PixelBox) or geographic
// space (GeoBox).
type Box interface {
	resolve(cfg Config) (p1, p2 mercator.Pixel, err error)
}

// PixelBox is a query region in pixel coordinates at the configured zoom.
// Corners may be given in any order; they are normalized so the first is the
// upper-left.
type PixelBox struct {
	P1, P2 mercator.Pixel
}

func (b PixelBox) resolve(Config) (mercator.Pixel, mercator.Pixel, error) {
	p1 := mercator.Pixel{Y: min(b.P1.Y, b.P2.Y), X: min(b.P1.X, b.P2.X)}
	p2 := mercator.Pixel{Y: max(b.P1.Y, b.P2.Y), X: max(b.P1.X, b.P2.X)}
	return p1, p2, nil
}

// GeoBox is a query region in geographic coordinates. North/South and
// East/West must be ordered; latitudes must lie strictly inside the Mercator
// band.
type GeoBox struct {
	North, South float64
	East, West   float64
}

func (b GeoBox) resolve(cfg Config) (mercator.Pixel, mercator.Pixel, error) {
	if b.North <= b.South {
		return mercator.Pixel{}, mercator.Pixel{}, fmt.Errorf("region: north %v not above south %v", b.North, b.South)
	}
	if b.East <= b.West {
		return mercator.Pixel{}, mercator.Pixel{}, fmt.Errorf("region: east %v not beyond west %v", b.East, b.West)
	}
	for _, lat := range []float64{b.North, b.South} {
		if lat <= -mercator.MaxLatitude || lat >= mercator.MaxLatitude {
			return mercator.Pixel{}, mercator.Pixel{}, fmt.Errorf("region: latitude %v outside the Mercator band (+-%.7f)", lat, mercator.MaxLatitude)
		}
	}
	p1 := mercator.GeoToPixel(mercator.GeoPoint{Lat: b.North, Lon: b.West}, cfg.Zoom)
	p2 := mercator.GeoToPixel(mercator.GeoPoint{Lat: b.South, Lon: b.East}, cfg.Zoom)
	return p1, p2, nil
}

// Config bundles the knobs of one region computation.
type Config struct {
	Zoom       int  // pixel-space zoom level
	Scale      int  // tile render scale, 1 or 2
	Margin     int  // border cropped from each fetched tile
	Resolution int  // raw fetch size per tile, e.g. 640
	FullTiles  bool // skip cropping to the requested box
	Square     bool // squarify the box before planning
}

func (cfg Config) validate() error {
	if cfg.Zoom < 0 {
		return fmt.Errorf("region: zoom %d negative", cfg.Zoom)
	}
	if cfg.Scale != 1 && cfg.Scale != 2 {
		return fmt.Errorf("region: scale %d not in {1,2}", cfg.Scale)
	}
	if cfg.Margin < 0 {
		return fmt.Errorf("region: margin %d negative", cfg.Margin)
	}
	if cfg.Resolution <= 0 {
		return fmt.Errorf("region: resolution %d not positive", cfg.Resolution)
	}
	return nil
}

// TileProvider supplies the decoded raw tile raster for a fetch request,
// exactly scale*resolution pixels square. Implementations may be called
// concurrently.
type TileProvider interface {
	Tile(ctx context.Context, req grid.Request) (*compose.Raster, error)
}

// Engine computes composite regions using a tile provider.
type Engine struct {
	provider TileProvider
	workers  int
	progress func(done, total int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of concurrent tile fetches.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProgress installs a callback invoked after each completed tile fetch.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) { e.progress = fn }
}

// New returns an engine fetching through the given provider.
func New(provider TileProvider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		workers:  4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeRegion turns a query box into a composite raster and its coordinate
// map. Tiles are fetched concurrently; the first fetch error aborts the
// computation, since the compositor cannot proceed with a partial grid.
func (e *Engine) ComputeRegion(ctx context.Context, box Box, cfg Config) (*compose.Raster, *compose.CoordMap, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	p1, p2, err := box.resolve(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Square {
		p1, p2 = mercator.Squarify(p1, p2)
	}

	plan, err := grid.NewPlan(p1, p2, cfg.Zoom, cfg.Resolution, cfg.Margin, cfg.Scale)
	if err != nil {
		return nil, nil, err
	}

	tiles, err := e.fetchAll(ctx, plan, cfg)
	if err != nil {
		return nil, nil, err
	}

	return compose.Compose(plan, tiles, compose.Options{
		Scale:     cfg.Scale,
		FullTiles: cfg.FullTiles,
	})
}

// ComputeGeoRegion is a convenience wrapper over ComputeRegion for callers
// holding bare geographic bounds. zoom and scale override the config.
func (e *Engine) ComputeGeoRegion(ctx context.Context, north, south, east, west float64, zoom, scale int, cfg Config) (*compose.Raster, *compose.CoordMap, error) {
	cfg.Zoom = zoom
	cfg.Scale = scale
	return e.ComputeRegion(ctx, GeoBox{North: north, South: south, East: east, West: west}, cfg)
}

// fetchAll retrieves every tile of the plan through a bounded worker pool
// and returns the margin-cropped rasters in plan order. Association by grid
// position, not fetch order, is the contract with the compositor.
func (e *Engine) fetchAll(ctx context.Context, plan *grid.Plan, cfg Config) ([]*compose.Raster, error) {
	tiles := make([]*compose.Raster, len(plan.Tiles))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	sem := make(chan struct{}, e.workers)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, tile := range plan.Tiles {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		// The select may win the semaphore even when the context is already
		// done; check again so cancellation is always recorded.
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		go func(i int, tile grid.Tile) {
			defer wg.Done()
			defer func() { <-sem }()

			raw, err := e.provider.Tile(ctx, tile.Request)
			if err != nil {
				fail(fmt.Errorf("region: tile (%d,%d): %w", tile.Row, tile.Col, err))
				return
			}

			want := cfg.Scale * cfg.Resolution
			if raw.Width != want || raw.Height != want {
				fail(fmt.Errorf("region: tile (%d,%d) is %dx%d, want %dx%d",
					tile.Row, tile.Col, raw.Width, raw.Height, want, want))
				return
			}

			cropped := raw
			if cfg.Margin > 0 {
				cropped, err = raw.CropBorder(cfg.Scale * cfg.Margin)
				if err != nil {
					fail(fmt.Errorf("region: tile (%d,%d): %w", tile.Row, tile.Col, err))
					return
				}
			}

			mu.Lock()
			tiles[i] = cropped
			done++
			// Delivered under the lock so counts arrive in order.
			if e.progress != nil {
				e.progress(done, len(plan.Tiles))
			}
			mu.Unlock()
		}(i, tile)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return tiles, nil
}
