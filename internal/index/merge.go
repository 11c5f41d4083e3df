package index

import (
	"fmt"
	"sync"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// PathologyLookup resolves the pathology of a study directory.
// *metadata.Store implements it.
type PathologyLookup interface {
	LookupPathology(lesion identity.LesionType, split identity.Split, isOverlay bool, prefix string) (string, error)
}

// Stats counts what the merger did with the files it was given.
type Stats struct {
	Files     int // files offered to Merge
	Cropped   int // rejected by the crop filter
	Images    int // full images accepted
	Masks     int // masks accepted
	Lookups   int // metadata lookups, one per new key
	Conflicts int // second, different path for an already filled field
}

// Merger folds image and mask paths into per-key records.
// It is safe for concurrent use; each merge is a read-modify-write under
// one lock so an image and a mask of the same key never overwrite each
// other.
type Merger struct {
	lookup PathologyLookup
	crop   CropFilter

	mu      sync.Mutex
	records map[Key]*Record
	stats   Stats
}

// NewMerger creates a merger. crop may be nil to accept every file.
func NewMerger(lookup PathologyLookup, crop CropFilter) *Merger {
	return &Merger{
		lookup:  lookup,
		crop:    crop,
		records: make(map[Key]*Record),
	}
}

// Merge records path under the key of id. It returns false without error
// when the file is rejected as a cropped patch.
func (m *Merger) Merge(id identity.Identity, path string) (bool, error) {
	if m.crop != nil {
		cropped, err := m.crop.IsCropped(path)
		if err != nil {
			return false, err
		}
		if cropped {
			m.mu.Lock()
			m.stats.Files++
			m.stats.Cropped++
			m.mu.Unlock()
			return false, nil
		}
	}

	key := KeyOf(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Files++

	rec, exists := m.records[key]
	if !exists {
		// Masks and images of a key resolve through the image column so
		// the pathology does not depend on which file arrives first.
		pathology, err := m.lookup.LookupPathology(id.LesionType, id.Split, false, id.ImageRoot())
		m.stats.Lookups++
		if err != nil {
			return false, fmt.Errorf("pathology of %s: %w", path, err)
		}
		rec = &Record{
			LesionType: id.LesionType,
			Split:      id.Split,
			PatientID:  id.PatientID,
			Laterality: id.Laterality,
			View:       id.View,
			Pathology:  pathology,
		}
		m.records[key] = rec
	}

	if id.IsOverlay() {
		m.stats.Masks++
		m.setPath(&rec.MaskPath, path)
	} else {
		m.stats.Images++
		m.setPath(&rec.ImagePath, path)
	}
	return true, nil
}

// setPath fills an empty field. When a field is already set to a different
// path the smaller path wins, which keeps the result independent of the
// order files were discovered in.
func (m *Merger) setPath(field *string, path string) {
	switch {
	case *field == "":
		*field = path
	case *field == path:
	default:
		m.stats.Conflicts++
		if path < *field {
			*field = path
		}
	}
}

// Len returns the number of distinct keys seen so far.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Stats returns a snapshot of the merge counters.
func (m *Merger) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Records returns copies of all records sorted by key.
func (m *Merger) Records() []Record {
	m.mu.Lock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	m.mu.Unlock()

	SortRecords(out)
	return out
}
