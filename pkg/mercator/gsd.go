package mercator

import (
	"fmt"
	"math"
)

// ComputeGSD returns the ground sampling distance in meters per pixel for an
// image rendered at the given zoom and scale, local to the given latitude.
func ComputeGSD(lat float64, zoom, scale int) float64 {
	k := ScaleFactor(lat)
	return EarthCircumference / (BaseTileSize * math.Pow(2, float64(zoom)) * k * float64(scale))
}

// DeriveZoom returns the minimal integer zoom whose GSD does not exceed
// goalGSD+deviation at the given latitude and scale. The continuous solution
// is obtained by log2, then the neighboring integers floor-1, floor, ceil are
// tried in increasing order. If none satisfies the bound the goalGSD/deviation
// combination is inconsistent and an error is returned.
func DeriveZoom(lat float64, scale int, goalGSD, deviation float64) (int, error) {
	k := ScaleFactor(lat)
	z := math.Log2(EarthCircumference / (BaseTileSize * goalGSD * k * float64(scale)))

	lo := int(math.Floor(z))
	for _, zoom := range []int{lo - 1, lo, int(math.Ceil(z))} {
		if ComputeGSD(lat, zoom, scale) <= goalGSD+deviation {
			return zoom, nil
		}
	}
	return 0, fmt.Errorf("derive zoom: no zoom level near %.2f reaches gsd %g (deviation %g) at lat %.6f scale %d",
		z, goalGSD, deviation, lat, scale)
}
