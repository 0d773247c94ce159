package compose

import (
	"runtime"
	"sync"

	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// CoordMap maps every pixel of a composite raster to its geographic
// coordinate. Entries are (lat, lon) pairs in row-major order. The map is
// immutable once returned from Compose.
type CoordMap struct {
	Coords []float64
	Width  int
	Height int
}

// NewCoordMap allocates a zeroed coordinate map.
func NewCoordMap(width, height int) *CoordMap {
	return &CoordMap{
		Coords: make([]float64, width*height*2),
		Width:  width,
		Height: height,
	}
}

// At returns the geographic coordinate of output pixel (y, x).
func (m *CoordMap) At(y, x int) mercator.GeoPoint {
	i := (y*m.Width + x) * 2
	return mercator.GeoPoint{Lat: m.Coords[i], Lon: m.Coords[i+1]}
}

func (m *CoordMap) set(y, x int, g mercator.GeoPoint) {
	i := (y*m.Width + x) * 2
	m.Coords[i] = g.Lat
	m.Coords[i+1] = g.Lon
}

// buildCoordMap fills a width x height map where output pixel (y, x)
// corresponds to raster pixel (baseY+y, baseX+x) at the given zoom. Each
// entry round-trips exactly through the forward projection. Pixels are
// independent, so rows are filled in parallel bands with disjoint writes.
func buildCoordMap(width, height, baseY, baseX, zoom int) (*CoordMap, error) {
	m := NewCoordMap(width, height)

	workers := min(runtime.NumCPU(), height)
	if workers < 1 {
		workers = 1
	}
	band := (height + workers - 1) / workers

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				for x := 0; x < width; x++ {
					g, err := mercator.SecurePixelToGeo(mercator.Pixel{Y: baseY + y, X: baseX + x}, zoom)
					if err != nil {
						errCh <- err
						return
					}
					m.set(y, x, g)
				}
			}
		}(y0, y1)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}
