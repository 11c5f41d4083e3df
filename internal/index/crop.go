package index

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
)

// DefaultCropThreshold is the size under which a DICOM file is taken to be
// a pre-cropped lesion patch rather than a full-resolution image or mask.
const DefaultCropThreshold int64 = 1 << 20

// CropFilter decides whether a file is a pre-cropped auxiliary image.
type CropFilter interface {
	IsCropped(path string) (bool, error)
}

// CropFilterFunc adapts a function to CropFilter.
type CropFilterFunc func(path string) (bool, error)

// IsCropped implements CropFilter.
func (f CropFilterFunc) IsCropped(path string) (bool, error) {
	return f(path)
}

// SizeFilter flags files smaller than MinBytes as cropped.
//
// This is a heuristic: the dataset has no per-file flag telling a cropped
// patch from a full image, and crops sit in the same directories as masks.
// A very small full image (false positive) or a very large crop (false
// negative) will be misclassified.
type SizeFilter struct {
	MinBytes int64

	// Stat defaults to os.Stat.
	Stat func(path string) (fs.FileInfo, error)
}

// NewSizeFilter parses a human readable threshold such as "1MiB" or "5 MB".
func NewSizeFilter(threshold string) (*SizeFilter, error) {
	n, err := humanize.ParseBytes(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid crop threshold %q: %w", threshold, err)
	}
	return &SizeFilter{MinBytes: int64(n)}, nil
}

// IsCropped implements CropFilter.
func (f *SizeFilter) IsCropped(path string) (bool, error) {
	stat := f.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size() < f.MinBytes, nil
}

func (f *SizeFilter) String() string {
	return "size < " + humanize.IBytes(uint64(f.MinBytes))
}
