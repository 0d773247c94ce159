package mercator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquarify(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 Pixel
		want1  Pixel
		want2  Pixel
	}{
		{
			name: "already square",
			p1:   Pixel{Y: 2, X: 3}, p2: Pixel{Y: 7, X: 8},
			want1: Pixel{Y: 2, X: 3}, want2: Pixel{Y: 7, X: 8},
		},
		{
			name: "taller than wide, even diff",
			p1:   Pixel{Y: 0, X: 10}, p2: Pixel{Y: 10, X: 14},
			want1: Pixel{Y: 0, X: 7}, want2: Pixel{Y: 10, X: 17},
		},
		{
			name: "taller than wide, odd diff",
			p1:   Pixel{Y: 0, X: 10}, p2: Pixel{Y: 9, X: 14},
			want1: Pixel{Y: 0, X: 8}, want2: Pixel{Y: 9, X: 17},
		},
		{
			name: "wider than tall, odd diff",
			p1:   Pixel{Y: 10, X: 0}, p2: Pixel{Y: 14, X: 9},
			want1: Pixel{Y: 8, X: 0}, want2: Pixel{Y: 17, X: 9},
		},
		{
			name: "expansion may go negative",
			p1:   Pixel{Y: 0, X: 0}, p2: Pixel{Y: 10, X: 2},
			want1: Pixel{Y: 0, X: -4}, want2: Pixel{Y: 10, X: 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q1, q2 := Squarify(tt.p1, tt.p2)
			assert.Equal(t, tt.want1, q1)
			assert.Equal(t, tt.want2, q2)
		})
	}
}

func TestSquarifyProperties(t *testing.T) {
	pairs := [][2]Pixel{
		{{Y: 0, X: 0}, {Y: 100, X: 3}},
		{{Y: 5, X: 5}, {Y: 6, X: 99}},
		{{Y: -10, X: -20}, {Y: 13, X: -19}},
		{{Y: 7, X: 7}, {Y: 7, X: 7}},
	}
	for _, pair := range pairs {
		p1, p2 := pair[0], pair[1]
		q1, q2 := Squarify(p1, p2)

		// Square.
		assert.Equal(t, q2.X-q1.X, q2.Y-q1.Y)

		// Contains the original rectangle.
		assert.LessOrEqual(t, q1.Y, p1.Y)
		assert.LessOrEqual(t, q1.X, p1.X)
		assert.GreaterOrEqual(t, q2.Y, p2.Y)
		assert.GreaterOrEqual(t, q2.X, p2.X)
	}
}

func TestSquarifyGeo(t *testing.T) {
	zoom := 14
	g1 := GeoPoint{Lat: 52.10, Lon: 5.08}
	g2 := GeoPoint{Lat: 52.05, Lon: 5.09}

	q1, q2 := SquarifyGeo(g1, g2, zoom)

	// Near-equal pixel extent per axis once projected back. The unsecured
	// pixel round trip may drift one pixel, hence the tolerance.
	p1 := GeoToPixel(q1, zoom)
	p2 := GeoToPixel(q2, zoom)
	require.InDelta(t, p2.X-p1.X, p2.Y-p1.Y, 1)

	// Still contains the original region (within that same drift).
	o1 := GeoToPixel(g1, zoom)
	o2 := GeoToPixel(g2, zoom)
	assert.LessOrEqual(t, p1.X, o1.X)
	assert.GreaterOrEqual(t, p2.X, o2.X-1)
	assert.LessOrEqual(t, p1.Y, o1.Y)
	assert.GreaterOrEqual(t, p2.Y, o2.Y-1)
}
