//go:build gocv

package geometry

import (
	"fmt"

	"gocv.io/x/gocv"
)

// OpenCVTracer is the name of the OpenCV backed tracer.
const OpenCVTracer = "opencv"

func init() {
	RegisterTracer(OpenCVTracer, func() Tracer { return ContourTracer{} })
}

// ContourTracer delegates to cv::findContours with RETR_EXTERNAL and
// CHAIN_APPROX_SIMPLE. Contours are compressed to their corner points.
type ContourTracer struct{}

// Trace implements Tracer.
func (ContourTracer) Trace(m *Mask) ([]Contour, error) {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return nil, nil
	}
	mat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8U, m.Image().Pix)
	if err != nil {
		return nil, fmt.Errorf("mask to mat: %w", err)
	}
	defer mat.Close()

	found := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	contours := make([]Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		contours = append(contours, Contour(found.At(i).ToPoints()))
	}
	return contours, nil
}
