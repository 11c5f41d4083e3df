// Package index builds the description table: one record per
// (patient, laterality, view) joining the full image, its ROI mask and the
// pathology from the case description tables.
package index

import (
	"cmp"
	"slices"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// Key identifies an image record.
type Key struct {
	PatientID  string
	Laterality identity.Laterality
	View       identity.View
}

// KeyOf returns the record key of a parsed study directory.
func KeyOf(id identity.Identity) Key {
	return Key{PatientID: id.PatientID, Laterality: id.Laterality, View: id.View}
}

// Compare orders keys by patient, laterality and view.
func (k Key) Compare(o Key) int {
	return cmp.Or(
		cmp.Compare(k.PatientID, o.PatientID),
		cmp.Compare(k.Laterality, o.Laterality),
		cmp.Compare(k.View, o.View),
	)
}

// Record is the merged image/mask unit. An empty ImagePath or MaskPath
// means that half has not been discovered; such records are legitimate.
type Record struct {
	LesionType identity.LesionType
	Split      identity.Split
	PatientID  string
	Laterality identity.Laterality
	View       identity.View
	Pathology  string
	ImagePath  string
	MaskPath   string
}

// Key returns the record key.
func (r Record) Key() Key {
	return Key{PatientID: r.PatientID, Laterality: r.Laterality, View: r.View}
}

// HasImage reports whether the full-resolution image was seen.
func (r Record) HasImage() bool {
	return r.ImagePath != ""
}

// HasMask reports whether the ROI mask was seen.
func (r Record) HasMask() bool {
	return r.MaskPath != ""
}

// Complete reports whether both halves are present.
func (r Record) Complete() bool {
	return r.HasImage() && r.HasMask()
}

// SortRecords orders records by key so that output does not depend on
// discovery order.
func SortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return a.Key().Compare(b.Key())
	})
}
