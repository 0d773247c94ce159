package mercator

// Squarify expands the shorter axis of the rectangle spanned by p1 (upper
// left) and p2 (lower right) symmetrically until width equals height. The
// result always contains the input rectangle; it never shrinks.
func Squarify(p1, p2 Pixel) (Pixel, Pixel) {
	w := p2.X - p1.X
	h := p2.Y - p1.Y
	if h > w {
		diff := h - w
		p1.X -= diff / 2
		p2.X += diff - diff/2
	}
	if w > h {
		diff := w - h
		p1.Y -= diff / 2
		p2.Y += diff - diff/2
	}
	return p1, p2
}

// SquarifyGeo squarifies a geographic rectangle by round-tripping through
// pixel space at the given zoom. Squarifying raw lat/lon directly would be
// non-uniform because Mercator scaling varies with latitude.
func SquarifyGeo(g1, g2 GeoPoint, zoom int) (GeoPoint, GeoPoint) {
	p1, p2 := Squarify(GeoToPixel(g1, zoom), GeoToPixel(g2, zoom))
	return PixelToGeo(p1, zoom), PixelToGeo(p2, zoom)
}
