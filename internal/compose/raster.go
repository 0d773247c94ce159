// Package compose assembles fetched tile rasters into one contiguous image
// and derives the per-pixel geographic coordinate map aligned to it.
package compose

import (
	"fmt"
	"image"
)

// Channels is the number of bytes per pixel; rasters are 8-bit RGB.
const Channels = 3

// Raster is an RGB pixel buffer in row-major order with explicit dimensions.
type Raster struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewRaster allocates a zeroed raster.
func NewRaster(width, height int) *Raster {
	return &Raster{
		Pix:    make([]uint8, width*height*Channels),
		Width:  width,
		Height: height,
	}
}

// FromImage converts a decoded image to an RGB raster, dropping alpha.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	r := NewRaster(bounds.Dx(), bounds.Dy())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r.Pix[i] = uint8(cr >> 8)
			r.Pix[i+1] = uint8(cg >> 8)
			r.Pix[i+2] = uint8(cb >> 8)
			i += Channels
		}
	}
	return r
}

// At returns the RGB value at (y, x).
func (r *Raster) At(y, x int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * Channels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Blit copies src into r with its upper-left corner at (y, x). The source
// must fit entirely inside r.
func (r *Raster) Blit(src *Raster, y, x int) error {
	if y < 0 || x < 0 || y+src.Height > r.Height || x+src.Width > r.Width {
		return fmt.Errorf("compose: blit of %dx%d at (%d,%d) exceeds %dx%d raster",
			src.Width, src.Height, y, x, r.Width, r.Height)
	}
	rowBytes := src.Width * Channels
	for row := 0; row < src.Height; row++ {
		dst := ((y+row)*r.Width + x) * Channels
		copy(r.Pix[dst:dst+rowBytes], src.Pix[row*rowBytes:(row+1)*rowBytes])
	}
	return nil
}

// Crop returns a copy of the sub-raster rows [y0,y1) and columns [x0,x1).
func (r *Raster) Crop(y0, x0, y1, x1 int) (*Raster, error) {
	if y0 < 0 || x0 < 0 || y1 > r.Height || x1 > r.Width || y0 >= y1 || x0 >= x1 {
		return nil, fmt.Errorf("compose: crop [%d:%d,%d:%d] invalid for %dx%d raster",
			y0, y1, x0, x1, r.Width, r.Height)
	}
	out := NewRaster(x1-x0, y1-y0)
	rowBytes := out.Width * Channels
	for row := y0; row < y1; row++ {
		src := (row*r.Width + x0) * Channels
		copy(out.Pix[(row-y0)*rowBytes:(row-y0+1)*rowBytes], r.Pix[src:src+rowBytes])
	}
	return out, nil
}

// CropBorder removes a uniform border of the given width from every side.
// Fetched tiles carry a baked-in logo band that is cut this way.
func (r *Raster) CropBorder(border int) (*Raster, error) {
	return r.Crop(border, border, r.Height-border, r.Width-border)
}

// Image copies the raster into a stdlib RGBA image for encoding.
func (r *Raster) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			src := (y*r.Width + x) * Channels
			dst := img.PixOffset(x, y)
			img.Pix[dst] = r.Pix[src]
			img.Pix[dst+1] = r.Pix[src+1]
			img.Pix[dst+2] = r.Pix[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return img
}
