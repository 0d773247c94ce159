package export

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// testCoordMap builds a coordinate map for a small pixel window at zoom 10.
func testCoordMap(t *testing.T) *compose.CoordMap {
	t.Helper()
	m := compose.NewCoordMap(4, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			g, err := mercator.SecurePixelToGeo(mercator.Pixel{Y: 100000 + y, X: 200000 + x}, 10)
			require.NoError(t, err)
			i := (y*m.Width + x) * 2
			m.Coords[i] = g.Lat
			m.Coords[i+1] = g.Lon
		}
	}
	return m
}

func TestWritePNG(t *testing.T) {
	raster := compose.NewRaster(4, 3)
	raster.Pix[0] = 255

	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, WritePNG(path, raster))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestBoundOrientation(t *testing.T) {
	coords := testCoordMap(t)
	b := Bound(coords)

	// Min is the lower-left corner, Max the upper-right.
	assert.Less(t, b.Min[1], b.Max[1])
	assert.Less(t, b.Min[0], b.Max[0])
}

func TestWriteWorldFile(t *testing.T) {
	coords := testCoordMap(t)
	imagePath := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, WriteWorldFile(imagePath, coords))

	data, err := os.ReadFile(filepath.Join(filepath.Dir(imagePath), "out.pnw"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 6)
}

func TestWriteFootprint(t *testing.T) {
	coords := testCoordMap(t)
	path := filepath.Join(t.TempDir(), "footprint.geojson")

	require.NoError(t, WriteFootprint(path, coords))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	feature, err := geojson.UnmarshalFeature(data)
	require.NoError(t, err)
	assert.Equal(t, "Polygon", string(feature.Geometry.GeoJSONType()))
	assert.EqualValues(t, 4, feature.Properties["width"])
}
