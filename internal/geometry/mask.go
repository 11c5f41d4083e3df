// Package geometry turns ROI mask images into lesion bounding rectangles.
package geometry

import (
	"image"
)

// Mask is a single-channel binary image. Pix holds one byte per pixel in
// row-major order; nonzero bytes are foreground.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask returns an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

func (m *Mask) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// At reports whether (x, y) is foreground. Pixels outside the mask are
// background.
func (m *Mask) At(x, y int) bool {
	return m.inside(x, y) && m.Pix[y*m.Width+x] != 0
}

// Set marks (x, y) as foreground. Out of range coordinates are ignored.
func (m *Mask) Set(x, y int) {
	if m.inside(x, y) {
		m.Pix[y*m.Width+x] = 0xFF
	}
}

// Fill marks every pixel of r as foreground, clipped to the mask.
func (m *Mask) Fill(r Rect) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			m.Set(x, y)
		}
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// MaskFromImage thresholds img at zero: any nonzero sample is foreground.
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+m.Width]
			copy(m.Pix[y*m.Width:], row)
		}
	case *image.Gray16:
		for y := 0; y < m.Height; y++ {
			off := y * src.Stride
			for x := 0; x < m.Width; x++ {
				if src.Pix[off+2*x] != 0 || src.Pix[off+2*x+1] != 0 {
					m.Pix[y*m.Width+x] = 0xFF
				}
			}
		}
	default:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				if r|g|bl != 0 {
					m.Pix[y*m.Width+x] = 0xFF
				}
			}
		}
	}
	return m
}

// Image returns the mask as an 8-bit grayscale image, foreground at 255.
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, p := range m.Pix {
		if p != 0 {
			img.Pix[i] = 0xFF
		}
	}
	return img
}
