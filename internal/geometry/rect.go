package geometry

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// DefaultMinArea is the noise threshold: a region is reported only when
// its bounding rectangle area strictly exceeds it.
const DefaultMinArea = 10

// Rect is an axis-aligned rectangle in pixel coordinates.
// It encodes to JSON as [x, y, w, h].
type Rect struct {
	X, Y, W, H int
}

// Area returns W*H.
func (r Rect) Area() int {
	return r.W * r.H
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d %d %d %d]", r.X, r.Y, r.W, r.H)
}

// BoundingRect returns the smallest rectangle containing every point.
// An empty slice gives the zero Rect.
func BoundingRect(points []image.Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
}

// Scale maps r to another resolution: x and width by fx, y and height by
// fy, each rounded to the nearest pixel. Scaling twice equals scaling once
// by the product of the factors only while the intermediate values are
// whole pixels: X 1 scaled by 0.5 and then by 2 gives 2, by 1 directly gives 1.
func Scale(r Rect, fx, fy float64) Rect {
	return Rect{
		X: int(math.Round(float64(r.X) * fx)),
		Y: int(math.Round(float64(r.Y) * fy)),
		W: int(math.Round(float64(r.W) * fx)),
		H: int(math.Round(float64(r.H) * fy)),
	}
}

// ScaleAll applies Scale to every rectangle.
func ScaleAll(rects []Rect, fx, fy float64) []Rect {
	out := make([]Rect, len(rects))
	for i, r := range rects {
		out[i] = Scale(r, fx, fy)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("rect: want 4 values, got %d", len(v))
	}
	*r = Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}
