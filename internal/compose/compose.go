package compose

import (
	"errors"
	"fmt"

	"github.com/jvtubergen/gmaps-image/internal/grid"
)

// ErrFootprint reports that a composite raster's dimensions are not aligned
// to the tile footprint. It signals a planner or cropping bug, never bad
// caller input.
var ErrFootprint = errors.New("compose: composite not aligned to tile footprint")

// Options configure a composition run.
type Options struct {
	// Scale is the render scale of the fetched tiles (1 or 2); scale 2 tiles
	// carry twice the pixels per axis and one extra effective zoom level.
	Scale int

	// FullTiles skips cropping to the requested box, returning the whole
	// tile-aligned composite.
	FullTiles bool
}

// Compose assembles the margin-cropped tile rasters into one contiguous
// image following the plan's row-major order, crops it to the requested
// pixel box unless full-tiles mode is on, and derives the coordinate map for
// the result. Tiles must arrive in plan order, each exactly
// scale*step pixels square; the fetch order upstream is free as long as the
// association to the grid position is preserved.
func Compose(plan *grid.Plan, tiles []*Raster, opts Options) (*Raster, *CoordMap, error) {
	if opts.Scale != 1 && opts.Scale != 2 {
		return nil, nil, fmt.Errorf("compose: scale %d not in {1,2}", opts.Scale)
	}
	if len(tiles) != plan.Width*plan.Height {
		return nil, nil, fmt.Errorf("compose: got %d tiles for a %dx%d grid", len(tiles), plan.Width, plan.Height)
	}

	size := opts.Scale * plan.Step
	for i, tile := range tiles {
		if tile == nil {
			return nil, nil, fmt.Errorf("compose: missing raster for tile %d (row %d, col %d)",
				i, plan.Tiles[i].Row, plan.Tiles[i].Col)
		}
		if tile.Width != size || tile.Height != size {
			return nil, nil, fmt.Errorf("compose: tile %d is %dx%d, want %dx%d",
				i, tile.Width, tile.Height, size, size)
		}
	}

	composite := NewRaster(plan.Width*size, plan.Height*size)
	for i, tile := range tiles {
		row := i / plan.Width
		col := i % plan.Width
		if err := composite.Blit(tile, row*size, col*size); err != nil {
			return nil, nil, err
		}
	}

	if composite.Width%size != 0 || composite.Height%size != 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d with footprint %d", ErrFootprint, composite.Width, composite.Height, size)
	}

	// Base raster pixel of output (0,0) in scaled coordinates, used to
	// anchor the coordinate map.
	origin := plan.Origin()
	baseY := opts.Scale * origin.Y
	baseX := opts.Scale * origin.X

	if !opts.FullTiles {
		if plan.P2.Y == plan.P1.Y || plan.P2.X == plan.P1.X {
			return nil, nil, fmt.Errorf("compose: requested box spans no pixels (%d,%d)-(%d,%d)",
				plan.P1.Y, plan.P1.X, plan.P2.Y, plan.P2.X)
		}

		// Padding contributed by the tiles extending beyond the box.
		off1y := opts.Scale * floorMod(plan.P1.Y, plan.Step)
		off1x := opts.Scale * floorMod(plan.P1.X, plan.Step)
		off2y := opts.Scale * (plan.Step - floorMod(plan.P2.Y, plan.Step))
		off2x := opts.Scale * (plan.Step - floorMod(plan.P2.X, plan.Step))

		cropped, err := composite.Crop(off1y, off1x, composite.Height-off2y, composite.Width-off2x)
		if err != nil {
			return nil, nil, err
		}
		composite = cropped
		baseY = opts.Scale * plan.P1.Y
		baseX = opts.Scale * plan.P1.X

		if composite.Height != opts.Scale*(plan.P2.Y-plan.P1.Y) || composite.Width != opts.Scale*(plan.P2.X-plan.P1.X) {
			return nil, nil, fmt.Errorf("%w: cropped to %dx%d, want %dx%d", ErrFootprint,
				composite.Width, composite.Height,
				opts.Scale*(plan.P2.X-plan.P1.X), opts.Scale*(plan.P2.Y-plan.P1.Y))
		}
	}

	// Scale 2 images are rendered at one extra effective zoom level, so the
	// scaled pixel coordinates live one zoom deeper.
	zoom := plan.Zoom
	if opts.Scale == 2 {
		zoom++
	}

	coords, err := buildCoordMap(composite.Width, composite.Height, baseY, baseX, zoom)
	if err != nil {
		return nil, nil, err
	}

	return composite, coords, nil
}

// floorMod is the non-negative remainder, matching floored division.
func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
