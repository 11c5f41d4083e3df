package geometry

import (
	"fmt"
	"image"
	"slices"
	"sort"
	"sync"
)

// Contour is a closed chain of boundary pixels.
type Contour []image.Point

// Tracer finds the outer boundaries of the foreground regions of a mask.
// Only external regions are reported: holes, and regions sitting inside
// the hole of another region, are not.
type Tracer interface {
	Trace(m *Mask) ([]Contour, error)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(m *Mask) ([]Contour, error)

// Trace implements Tracer.
func (f TracerFunc) Trace(m *Mask) ([]Contour, error) {
	return f(m)
}

// BuiltinTracer is the name of the pure Go tracer.
const BuiltinTracer = "builtin"

var (
	tracersMu sync.RWMutex
	tracers   = map[string]func() Tracer{
		BuiltinTracer: func() Tracer { return BorderTracer{} },
	}
)

// RegisterTracer makes a tracer available to NewTracer under name.
func RegisterTracer(name string, factory func() Tracer) {
	tracersMu.Lock()
	defer tracersMu.Unlock()
	tracers[name] = factory
}

// NewTracer returns the tracer registered under name. An empty name selects
// the builtin tracer.
func NewTracer(name string) (Tracer, error) {
	if name == "" {
		name = BuiltinTracer
	}
	tracersMu.RLock()
	factory, ok := tracers[name]
	tracersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tracer %q (available: %v)", name, TracerNames())
	}
	return factory(), nil
}

// TracerNames lists the registered tracers.
func TracerNames() []string {
	tracersMu.RLock()
	defer tracersMu.RUnlock()
	names := make([]string, 0, len(tracers))
	for name := range tracers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BorderTracer is a pure Go tracer. Foreground is 8-connected and
// background 4-connected. Components are labelled, the background reachable
// from the image border is flooded, and every component touching that
// outer background is followed with Moore-neighbour tracing.
//
// Contours are returned in raster order of their topmost-leftmost pixel
// and are not compressed.
type BorderTracer struct{}

// neighbours in clockwise order (y grows downward), starting west.
var neighbours = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

const west = 0

func directionOf(d image.Point) int {
	return slices.Index(neighbours[:], d)
}

// Trace implements Tracer.
func (BorderTracer) Trace(m *Mask) ([]Contour, error) {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return nil, nil
	}
	if len(m.Pix) != m.Width*m.Height {
		return nil, fmt.Errorf("mask is %dx%d but holds %d pixels", m.Width, m.Height, len(m.Pix))
	}

	labels, n := labelComponents(m)
	if n == 0 {
		return nil, nil
	}
	outside := floodOutside(m)

	external := make([]bool, n+1)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			l := labels[y*m.Width+x]
			if l == 0 || external[l] {
				continue
			}
			for _, d := range [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+d.X, y+d.Y
				if !m.inside(nx, ny) || outside[ny*m.Width+nx] {
					external[l] = true
					break
				}
			}
		}
	}

	var contours []Contour
	traced := make([]bool, n+1)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			l := labels[y*m.Width+x]
			if l == 0 || !external[l] || traced[l] {
				continue
			}
			traced[l] = true
			contours = append(contours, followBorder(m, image.Pt(x, y)))
		}
	}
	return contours, nil
}

// labelComponents assigns 8-connected foreground components ids 1..n in
// raster order of their first pixel. Background is 0.
func labelComponents(m *Mask) ([]int32, int) {
	labels := make([]int32, len(m.Pix))
	var queue []int
	var n int32
	for i, p := range m.Pix {
		if p == 0 || labels[i] != 0 {
			continue
		}
		n++
		labels[i] = n
		queue = append(queue[:0], i)
		for len(queue) > 0 {
			cur := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			cx, cy := cur%m.Width, cur/m.Width
			for _, d := range neighbours {
				nx, ny := cx+d.X, cy+d.Y
				if !m.At(nx, ny) {
					continue
				}
				j := ny*m.Width + nx
				if labels[j] == 0 {
					labels[j] = n
					queue = append(queue, j)
				}
			}
		}
	}
	return labels, int(n)
}

// floodOutside marks the background pixels 4-connected to the image border.
func floodOutside(m *Mask) []bool {
	outside := make([]bool, len(m.Pix))
	var stack []int
	push := func(x, y int) {
		i := y*m.Width + x
		if m.Pix[i] == 0 && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < m.Width; x++ {
		push(x, 0)
		push(x, m.Height-1)
	}
	for y := 0; y < m.Height; y++ {
		push(0, y)
		push(m.Width-1, y)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := cur%m.Width, cur/m.Width
		for _, d := range [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nx, ny := cx+d.X, cy+d.Y
			if m.inside(nx, ny) {
				push(nx, ny)
			}
		}
	}
	return outside
}

// followBorder walks the outer boundary of the component whose
// topmost-leftmost pixel is start. The west neighbour of start is always
// background, so tracing begins with west as the backtrack direction.
func followBorder(m *Mask, start image.Point) Contour {
	contour := Contour{start}
	second, back, ok := mooreStep(m, start, west)
	if !ok {
		return contour
	}

	// Every boundary pixel is entered from at most 4 sides.
	limit := 4*len(m.Pix) + 8
	cur := second
	for i := 0; i < limit; i++ {
		next, nextBack, _ := mooreStep(m, cur, back)
		if cur == start && next == second {
			break
		}
		contour = append(contour, cur)
		cur, back = next, nextBack
	}
	return contour
}

// mooreStep scans the neighbours of cur clockwise, starting after the
// background direction back, and returns the first foreground pixel along
// with the direction from it to the last background pixel seen.
func mooreStep(m *Mask, cur image.Point, back int) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		d := (back + i) % 8
		p := cur.Add(neighbours[d])
		if !m.At(p.X, p.Y) {
			continue
		}
		prev := cur.Add(neighbours[(d+7)%8])
		return p, directionOf(prev.Sub(p)), true
	}
	return cur, back, false
}
