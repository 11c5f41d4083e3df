package geometry

import (
	"errors"
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrDecodeFailure is returned when a mask file cannot be turned into a
// pixel array.
var ErrDecodeFailure = errors.New("decode failure")

// Decoder reads a mask file.
type Decoder interface {
	Decode(path string) (*Mask, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(path string) (*Mask, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(path string) (*Mask, error) {
	return f(path)
}

// DICOMDecoder decodes the first frame of a DICOM file.
type DICOMDecoder struct{}

// Decode implements Decoder.
func (DICOMDecoder) Decode(path string) (*Mask, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDecodeFailure, path, err)
	}
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no pixel data: %v", ErrDecodeFailure, path, err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrDecodeFailure, path)
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, path, err)
	}
	return MaskFromImage(img), nil
}

// mustNewElement creates a DICOM element, panicking on error.
// Only used with tags and values known to be valid.
func mustNewElement(t tag.Tag, data any) *dicom.Element {
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// WriteDICOM writes m as a single-frame 8-bit MONOCHROME2 DICOM file with
// foreground at 255. extra elements (patient, study and SOP identifiers)
// are written before the image pixel module.
func WriteDICOM(path string, m *Mask, extra ...*dicom.Element) error {
	native := frame.NewNativeFrame[uint8](8, m.Height, m.Width, m.Width*m.Height, 1)
	for i, p := range m.Pix {
		if p != 0 {
			native.RawData[i] = 0xFF
		}
	}

	elements := make([]*dicom.Element, 0, len(extra)+10)
	if !hasTag(extra, tag.TransferSyntaxUID) {
		elements = append(elements, mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}))
	}
	elements = append(elements, extra...)
	elements = append(elements,
		mustNewElement(tag.Rows, []int{m.Height}),
		mustNewElement(tag.Columns, []int{m.Width}),
		mustNewElement(tag.BitsAllocated, []int{8}),
		mustNewElement(tag.BitsStored, []int{8}),
		mustNewElement(tag.HighBit, []int{7}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: native}},
		}),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func hasTag(elements []*dicom.Element, t tag.Tag) bool {
	for _, e := range elements {
		if e.Tag == t {
			return true
		}
	}
	return false
}
