package mercator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGSD(t *testing.T) {
	// At the equator, zoom 0, scale 1: one pixel of the 256px world image.
	assert.InDelta(t, EarthCircumference/256, ComputeGSD(0, 0, 1), 1e-6)

	// Scale 2 halves the GSD.
	assert.InDelta(t, ComputeGSD(0, 0, 1)/2, ComputeGSD(0, 0, 2), 1e-6)

	// Away from the equator pixels cover less ground.
	assert.Less(t, ComputeGSD(60, 10, 1), ComputeGSD(0, 10, 1))
}

func TestComputeGSDMonotonicInZoom(t *testing.T) {
	for _, lat := range []float64{0, 23.5, -52.1, 80} {
		prev := ComputeGSD(lat, 0, 1)
		for zoom := 1; zoom <= 21; zoom++ {
			cur := ComputeGSD(lat, zoom, 1)
			assert.Lessf(t, cur, prev, "gsd not decreasing at lat %v zoom %d", lat, zoom)
			prev = cur
		}
	}
}

func TestDeriveZoomReturnsMinimalZoom(t *testing.T) {
	for _, lat := range []float64{0, 45.5, -60} {
		for _, scale := range []int{1, 2} {
			for want := 2; want <= 20; want++ {
				goal := ComputeGSD(lat, want, scale)
				zoom, err := DeriveZoom(lat, scale, goal, 0)
				require.NoError(t, err)
				assert.Equalf(t, want, zoom, "lat %v scale %d", lat, scale)

				// The returned zoom is minimal: one level lower misses the goal.
				assert.Greater(t, ComputeGSD(lat, zoom-1, scale), goal)
			}
		}
	}
}

func TestDeriveZoomUsesDeviationSlack(t *testing.T) {
	lat := 10.0
	goal := ComputeGSD(lat, 12, 1)

	// A goal just below gsd(12) forces zoom 13 without slack...
	zoom, err := DeriveZoom(lat, 1, goal*0.99, 0)
	require.NoError(t, err)
	assert.Equal(t, 13, zoom)

	// ...but slack covering the gap admits zoom 12 again.
	zoom, err = DeriveZoom(lat, 1, goal*0.99, goal*0.02)
	require.NoError(t, err)
	assert.Equal(t, 12, zoom)
}

func TestDeriveZoomContractViolation(t *testing.T) {
	// A negative deviation larger than the goal leaves no satisfiable zoom
	// among the candidates; that is a caller error and must be reported.
	_, err := DeriveZoom(0, 1, 10, -20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derive zoom")
}
