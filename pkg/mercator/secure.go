package mercator

import (
	"errors"
	"fmt"
)

// secureNudge is the geographic adjustment applied per correction step.
const secureNudge = 1e-6

// secureMaxSteps bounds the correction loop. The loop converges after a
// handful of steps in practice but has no proven bound, so exceeding the cap
// is surfaced as ErrNoConvergence rather than looping forever.
const secureMaxSteps = 1000

// ErrNoConvergence reports that secure rounding failed to stabilize. It
// indicates a projection-math edge case, not bad caller input.
var ErrNoConvergence = errors.New("mercator: secure rounding did not converge")

// SecurePixelToGeo returns a geographic point whose forward projection through
// GeoToPixel recovers exactly p. The naive inverse can land one pixel off at
// tile boundaries because float truncation is asymmetric between the two
// directions; the result is nudged by secureNudge until the round trip is
// exact. A deviation of more than one pixel means the projection math itself
// is broken and is reported as an error.
func SecurePixelToGeo(p Pixel, zoom int) (GeoPoint, error) {
	g := PixelToGeo(p, zoom)
	q := GeoToPixel(g, zoom)

	for steps := 0; q.Y != p.Y; steps++ {
		if steps >= secureMaxSteps {
			return GeoPoint{}, fmt.Errorf("%w: latitude for pixel (%d,%d) at zoom %d", ErrNoConvergence, p.Y, p.X, zoom)
		}
		if d := q.Y - p.Y; d != 1 && d != -1 {
			return GeoPoint{}, fmt.Errorf("mercator: pixel (%d,%d) at zoom %d re-projected %d rows off", p.Y, p.X, zoom, d)
		}
		if q.Y < p.Y {
			g.Lat -= secureNudge
		} else {
			g.Lat += secureNudge
		}
		q = GeoToPixel(g, zoom)
	}

	for steps := 0; q.X != p.X; steps++ {
		if steps >= secureMaxSteps {
			return GeoPoint{}, fmt.Errorf("%w: longitude for pixel (%d,%d) at zoom %d", ErrNoConvergence, p.Y, p.X, zoom)
		}
		if d := q.X - p.X; d != 1 && d != -1 {
			return GeoPoint{}, fmt.Errorf("mercator: pixel (%d,%d) at zoom %d re-projected %d columns off", p.Y, p.X, zoom, d)
		}
		if q.X < p.X {
			g.Lon += secureNudge
		} else {
			g.Lon -= secureNudge
		}
		q = GeoToPixel(g, zoom)
	}

	return g, nil
}
