// Package export writes composite results to disk: the raster as PNG, an
// ESRI world file georeferencing it, and a GeoJSON footprint of its bounds.
package export

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// WritePNG encodes the raster to the given path.
func WritePNG(path string, raster *compose.Raster) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, raster.Image())
}

// Bound returns the geographic bounding box of the coordinate map, from its
// corner entries.
func Bound(coords *compose.CoordMap) orb.Bound {
	ul := coords.At(0, 0)
	lr := coords.At(coords.Height-1, coords.Width-1)
	return orb.Bound{
		Min: orb.Point{ul.Lon, lr.Lat},
		Max: orb.Point{lr.Lon, ul.Lat},
	}
}

// WriteWorldFile writes the six-line world file next to the image path,
// georeferencing the raster in EPSG:3857 meters. The extension follows the
// .pnw convention for PNG images.
func WriteWorldFile(imagePath string, coords *compose.CoordMap) error {
	b := Bound(coords)
	minX, maxY := mercator.GeoToMeters(mercator.GeoPoint{Lat: b.Max[1], Lon: b.Min[0]})
	maxX, minY := mercator.GeoToMeters(mercator.GeoPoint{Lat: b.Min[1], Lon: b.Max[0]})

	px := (maxX - minX) / float64(coords.Width)
	py := (maxY - minY) / float64(coords.Height)

	path := worldFilePath(imagePath)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Pixel size x, two rotation terms, negative pixel size y, then the
	// center of the upper-left pixel.
	fmt.Fprintf(file, "%24.10f\n", px)
	fmt.Fprintf(file, "%24.10f\n", 0.0)
	fmt.Fprintf(file, "%24.10f\n", 0.0)
	fmt.Fprintf(file, "%24.10f\n", -py)
	fmt.Fprintf(file, "%24.10f\n", minX+px/2)
	fmt.Fprintf(file, "%24.10f\n", maxY-py/2)
	return nil
}

func worldFilePath(imagePath string) string {
	if i := strings.LastIndex(imagePath, "."); i != -1 {
		return imagePath[:i] + ".pnw"
	}
	return imagePath + ".pnw"
}

// WriteFootprint writes the raster's geographic bounds as a GeoJSON polygon
// feature.
func WriteFootprint(path string, coords *compose.CoordMap) error {
	feature := geojson.NewFeature(Bound(coords).ToPolygon())
	feature.Properties["width"] = coords.Width
	feature.Properties["height"] = coords.Height

	data, err := json.MarshalIndent(feature, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
