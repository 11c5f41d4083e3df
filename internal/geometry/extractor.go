package geometry

import (
	"fmt"
)

// Rects traces m and returns the bounding rectangles of its external
// regions whose area strictly exceeds minArea, in tracer order.
func Rects(m *Mask, tracer Tracer, minArea int) ([]Rect, error) {
	contours, err := tracer.Trace(m)
	if err != nil {
		return nil, err
	}
	rects := make([]Rect, 0, len(contours))
	for _, c := range contours {
		r := BoundingRect(c)
		if r.Area() > minArea {
			rects = append(rects, r)
		}
	}
	return rects, nil
}

// Extractor turns mask files into bounding rectangles.
type Extractor struct {
	Decoder Decoder // DICOMDecoder when nil
	Tracer  Tracer  // BorderTracer when nil
	MinArea int
}

// NewExtractor returns an extractor with the DICOM decoder, the given
// tracer and the default noise threshold.
func NewExtractor(tracer Tracer) *Extractor {
	return &Extractor{Decoder: DICOMDecoder{}, Tracer: tracer, MinArea: DefaultMinArea}
}

// Extract decodes the mask at path and returns its lesion rectangles.
// Decode problems wrap ErrDecodeFailure.
func (e *Extractor) Extract(path string) ([]Rect, error) {
	decoder := e.Decoder
	if decoder == nil {
		decoder = DICOMDecoder{}
	}
	tracer := e.Tracer
	if tracer == nil {
		tracer = BorderTracer{}
	}

	m, err := decoder.Decode(path)
	if err != nil {
		return nil, err
	}
	rects, err := Rects(m, tracer, e.MinArea)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return rects, nil
}
