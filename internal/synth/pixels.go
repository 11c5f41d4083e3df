package synth

import (
	"image"
	"image/color"
	"math"
	randv2 "math/rand/v2"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
)

const maxValue16 = 1<<16 - 1

// mammogram renders a 16-bit breast-like image: a bright half disc against
// the chest wall, film noise, and a denser lesion where mask is set.
func mammogram(rng *randv2.Rand, width, height int, right bool, mask *geometry.Mask, lesion geometry.Rect) []uint16 {
	pix := make([]uint16, width*height)

	// Chest wall on the left for a RIGHT breast, on the right otherwise.
	wallX := 0.0
	if !right {
		wallX = float64(width)
	}
	centerY := float64(height) / 2
	radius := float64(min(width, height)) * 0.9

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) - wallX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx+dy*dy) / radius

			intensity := 0.0
			if dist < 1 {
				intensity = 0.25 + 0.45*(1-dist*dist)
			}
			noise := (rng.Float64() - 0.5) * 0.08
			pix[y*width+x] = toUint16(intensity + noise)
		}
	}

	texture := lesionTexture(rng, lesion)
	for y := lesion.Y; y < lesion.Y+lesion.H; y++ {
		for x := lesion.X; x < lesion.X+lesion.W; x++ {
			if !mask.At(x, y) {
				continue
			}
			t := float64(texture.Gray16At(x-lesion.X, y-lesion.Y).Y) / maxValue16
			i := y*width + x
			pix[i] = toUint16(float64(pix[i])/maxValue16 + 0.2 + 0.15*t)
		}
	}
	return pix
}

// lesionTexture upscales a coarse random grid to the lesion size so that
// the lesion has smooth internal structure.
func lesionTexture(rng *randv2.Rand, lesion geometry.Rect) *image.Gray16 {
	coarse := image.NewGray16(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(coarse.Pix); i += 2 {
		v := uint16(rng.IntN(maxValue16))
		coarse.Pix[i] = uint8(v >> 8)
		coarse.Pix[i+1] = uint8(v)
	}
	fine := image.NewGray16(image.Rect(0, 0, max(lesion.W, 1), max(lesion.H, 1)))
	draw.BiLinear.Scale(fine, fine.Bounds(), coarse, coarse.Bounds(), draw.Src, nil)
	return fine
}

// drawLesion fills an ellipse inscribed in r and returns the bounding
// rectangle of the pixels actually set.
func drawLesion(mask *geometry.Mask, r geometry.Rect) geometry.Rect {
	cx := float64(r.X) + float64(r.W-1)/2
	cy := float64(r.Y) + float64(r.H-1)/2
	rx := float64(r.W) / 2
	ry := float64(r.H) / 2

	var points []image.Point
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				mask.Set(x, y)
				points = append(points, image.Pt(x, y))
			}
		}
	}
	return geometry.BoundingRect(points)
}

// crop copies r out of a width-wide 16-bit pixel buffer.
func crop(pix []uint16, width int, r geometry.Rect) []uint16 {
	out := make([]uint16, 0, r.W*r.H)
	for y := r.Y; y < r.Y+r.H; y++ {
		out = append(out, pix[y*width+r.X:y*width+r.X+r.W]...)
	}
	return out
}

func toUint16(v float64) uint16 {
	return uint16(math.Max(0, math.Min(1, v)) * maxValue16)
}

// overlayText burns a scanner style label into the top corner of a 16-bit
// frame, white with a black outline, scaled to about a quarter of the
// image width.
func overlayText(pix []uint16, width, height int, text string, right bool) {
	face := basicfont.Face7x13
	baseWidth := font.MeasureString(face, text).Ceil()
	baseHeight := 13
	if baseWidth == 0 {
		return
	}

	textImg := image.NewAlpha(image.Rect(0, 0, baseWidth, baseHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	scale := math.Max(2, float64(width)*0.25/float64(baseWidth))
	scaledWidth := int(float64(baseWidth) * scale)
	scaledHeight := int(float64(baseHeight) * scale)
	scaled := image.NewAlpha(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	// The label goes on the side opposite the chest wall.
	margin := max(4, width/50)
	posX := width - scaledWidth - margin
	if !right {
		posX = margin
	}
	posY := margin

	outline := max(2, scaledHeight/12)
	set := func(x, y int, v uint16) {
		if x >= 0 && x < width && y >= 0 && y < height {
			pix[y*width+x] = v
		}
	}
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			if scaled.AlphaAt(sx, sy).A == 0 {
				continue
			}
			for dy := -outline; dy <= outline; dy++ {
				for dx := -outline; dx <= outline; dx++ {
					if dx*dx+dy*dy <= outline*outline {
						set(posX+sx+dx, posY+sy+dy, 0)
					}
				}
			}
		}
	}
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			if a := scaled.AlphaAt(sx, sy).A; a > 0 {
				set(posX+sx, posY+sy, uint16(a)<<8|uint16(a))
			}
		}
	}
}
