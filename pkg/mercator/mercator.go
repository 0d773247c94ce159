// Package mercator implements the Web Mercator coordinate math used by the
// region compositor: conversions between geographic coordinates, the
// normalized unit square, and pixel/tile/world coordinates at a zoom level.
//
// All functions are pure. Latitudes must lie strictly inside the Mercator
// band (-MaxLatitude, MaxLatitude); out-of-band input is never clamped, it
// yields coordinates outside the unit square, or NaN beyond the poles.
// Callers own that precondition.
package mercator

import "math"

const (
	// EarthRadius is the WGS84 equatorial radius in meters.
	EarthRadius = 6378137.0

	// EarthCircumference is the equatorial circumference in meters.
	EarthCircumference = 2 * math.Pi * EarthRadius

	// BaseTileSize is the pixel size of the zoom-0 world image per axis.
	BaseTileSize = 256
)

// MaxLatitude is the maximal latitude of the Web Mercator projection in
// degrees, gd(pi) = atan(sinh(pi)) ~= 85.05112878.
var MaxLatitude = radToDeg(gd(math.Pi))

// GeoPoint is a geographic coordinate in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Pixel is an integer raster coordinate at a specific zoom level, row (Y)
// before column (X), origin upper-left. A Pixel is meaningless without the
// zoom it was computed at.
type Pixel struct {
	Y int
	X int
}

// gd is the Gudermannian function, defined for real arguments.
// https://en.wikipedia.org/wiki/Gudermannian_function
func gd(tau float64) float64 {
	return 2*math.Atan(math.Exp(tau)) - 0.5*math.Pi
}

// gdInv is its inverse, ln(sec rho + tan rho), for |rho| < pi/2.
func gdInv(rho float64) float64 {
	return math.Log(1/math.Cos(rho) + math.Tan(rho))
}

func radToDeg(phi float64) float64 { return phi * 180 / math.Pi }
func degToRad(rho float64) float64 { return rho * math.Pi / 180 }

// GeoToUnit projects a geographic point onto the unit square [0,1]x[0,1],
// origin upper-left (so y=0 at MaxLatitude and x=0 at longitude -180).
func GeoToUnit(g GeoPoint) (y, x float64) {
	x = 0.5 + degToRad(g.Lon)/(2*math.Pi)
	y = 0.5 - gdInv(degToRad(g.Lat))/(2*math.Pi)
	return y, x
}

// UnitToGeo is the inverse of GeoToUnit.
func UnitToGeo(y, x float64) GeoPoint {
	return GeoPoint{
		Lat: radToDeg(gd(2 * math.Pi * (0.5 - y))),
		Lon: radToDeg(2 * math.Pi * (x - 0.5)),
	}
}

// PixelSpan is the raster size per axis at the given zoom, 256 * 2^zoom.
func PixelSpan(zoom int) int {
	return BaseTileSize << uint(zoom)
}

// UnitToPixel scales a unit coordinate to the pixel raster at the given zoom.
// Truncation (not rounding) is used uniformly: pixel index k covers the
// half-open interval [k, k+1) of scaled unit space.
func UnitToPixel(y, x float64, zoom int) Pixel {
	span := float64(PixelSpan(zoom))
	return Pixel{Y: int(y * span), X: int(x * span)}
}

// GeoToPixel projects a geographic point to the pixel raster at a zoom level.
func GeoToPixel(g GeoPoint, zoom int) Pixel {
	y, x := GeoToUnit(g)
	return UnitToPixel(y, x, zoom)
}

// PixelToGeo returns the geographic point of the pixel's upper-left corner.
func PixelToGeo(p Pixel, zoom int) GeoPoint {
	span := float64(PixelSpan(zoom))
	return UnitToGeo(float64(p.Y)/span, float64(p.X)/span)
}

// GeoToTile returns the 256px slippy-map tile address containing the point.
func GeoToTile(g GeoPoint, zoom int) (row, col int) {
	y, x := GeoToUnit(g)
	span := float64(int(1) << uint(zoom))
	return int(y * span), int(x * span)
}

// GeoToWorld projects onto the fixed 256x256 zoom-0 world image.
func GeoToWorld(g GeoPoint) (y, x float64) {
	uy, ux := GeoToUnit(g)
	return uy * BaseTileSize, ux * BaseTileSize
}

// GeoToMeters converts a geographic point to XY meters in Spherical Mercator
// (EPSG:3857), origin at the equator/prime meridian.
func GeoToMeters(g GeoPoint) (x, y float64) {
	const originShift = EarthCircumference / 2
	x = g.Lon * originShift / 180
	y = math.Log(math.Tan((90+g.Lat)*math.Pi/360)) / (math.Pi / 180)
	y = y * originShift / 180
	return x, y
}

// ScaleFactor is the local Mercator distortion factor sec(lat).
func ScaleFactor(lat float64) float64 {
	return 1 / math.Cos(degToRad(lat))
}
