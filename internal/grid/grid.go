// Package grid plans the minimal covering set of image tiles for a pixel
// bounding box. Tiles are addressed on a lattice of tileStep pixels, where
// tileStep is the usable footprint of one fetched image after the border
// margin is cropped away.
package grid

import (
	"fmt"

	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// Request fully determines one external tile fetch: a raw Resolution-sized
// image centered on Center, rendered at Zoom and Scale.
type Request struct {
	Center     mercator.GeoPoint
	Zoom       int
	Resolution int
	Scale      int
}

// Tile pairs a grid index with its fetch request.
type Tile struct {
	Row, Col int
	Request  Request
}

// Plan is an ordered tile grid covering a pixel bounding box. Tiles are in
// row-major order (row ascending, then column ascending); the compositor
// places them in the same order.
type Plan struct {
	Tiles  []Tile
	Width  int // columns
	Height int // rows
	Step   int // usable pixels per tile side after margin crop
	P1, P2 mercator.Pixel
	Zoom   int
}

// NewPlan computes the minimal covering grid for the box spanned by p1 (upper
// left) and p2 (lower right) at the given zoom. resolution is the raw fetch
// size per tile and margin the border cropped from each side, so the usable
// step is resolution - 2*margin.
func NewPlan(p1, p2 mercator.Pixel, zoom, resolution, margin, scale int) (*Plan, error) {
	step := resolution - 2*margin
	if step <= 0 {
		return nil, fmt.Errorf("grid: tile step %d not positive (resolution %d, margin %d)", step, resolution, margin)
	}
	if p2.Y < p1.Y || p2.X < p1.X {
		return nil, fmt.Errorf("grid: inverted bounding box (%d,%d)-(%d,%d)", p1.Y, p1.X, p2.Y, p2.X)
	}

	t1r, t1c := floorDiv(p1.Y, step), floorDiv(p1.X, step)
	t2r, t2c := floorDiv(p2.Y, step), floorDiv(p2.X, step)

	plan := &Plan{
		Width:  t2c - t1c + 1,
		Height: t2r - t1r + 1,
		Step:   step,
		P1:     p1,
		P2:     p2,
		Zoom:   zoom,
	}

	plan.Tiles = make([]Tile, 0, plan.Width*plan.Height)
	for row := t1r; row <= t2r; row++ {
		for col := t1c; col <= t2c; col++ {
			center := mercator.Pixel{
				Y: tileCenter(row, step),
				X: tileCenter(col, step),
			}
			plan.Tiles = append(plan.Tiles, Tile{
				Row: row,
				Col: col,
				Request: Request{
					Center:     mercator.PixelToGeo(center, zoom),
					Zoom:       zoom,
					Resolution: resolution,
					Scale:      scale,
				},
			})
		}
	}

	return plan, nil
}

// Origin returns the pixel coordinate of the grid's upper-left tile corner.
func (p *Plan) Origin() mercator.Pixel {
	return mercator.Pixel{
		Y: floorDiv(p.P1.Y, p.Step) * p.Step,
		X: floorDiv(p.P1.X, p.Step) * p.Step,
	}
}

// tileCenter is the pixel at the center of tile index t, (t + 0.5) * step.
func tileCenter(t, step int) int {
	return int((float64(t) + 0.5) * float64(step))
}

// floorDiv divides rounding toward negative infinity. Squarified boxes near
// the raster edge can carry negative pixel coordinates.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
