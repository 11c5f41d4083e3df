// Package identity derives structured study identity from CBIS-DDSM
// directory names such as "Mass-Training_P_00001_LEFT_CC_1".
package identity

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedIdentity is returned when a directory name does not follow
// the <LesionType>-<Split>_<PatientId>_<Laterality>_<View>[_<Overlay>] grammar.
var ErrMalformedIdentity = errors.New("malformed identity")

// PatientIDPrefix is the literal every patient identifier starts with.
const PatientIDPrefix = "P_"

// studyPattern is anchored on both ends; free text groups are non-greedy
// so they never swallow the "_" delimiters.
var studyPattern = regexp.MustCompile(
	`^(?P<lesion_type>.*?)-(?P<set>.*?)_(?P<patient_id>` + PatientIDPrefix + `.*?)` +
		`_(?P<direction>.*?)_(?P<view>.*?)(?:_(?P<overlay>\d+))?$`)

// LesionType is the abnormality category of a case.
type LesionType string

const (
	Calc LesionType = "Calc"
	Mass LesionType = "Mass"
)

// AllLesionTypes returns every lesion type known to the dataset.
func AllLesionTypes() []LesionType {
	return []LesionType{Calc, Mass}
}

// ParseLesionType parses a lesion type, ignoring case.
func ParseLesionType(s string) (LesionType, error) {
	for _, t := range AllLesionTypes() {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid lesion type %q (valid: %v)", s, AllLesionTypes())
}

// Split is the dataset partition.
type Split string

const (
	Training Split = "Training"
	Test     Split = "Test"
)

// AllSplits returns every dataset partition.
func AllSplits() []Split {
	return []Split{Training, Test}
}

// ParseSplit parses a split name, ignoring case.
func ParseSplit(s string) (Split, error) {
	for _, sp := range AllSplits() {
		if strings.EqualFold(s, string(sp)) {
			return sp, nil
		}
	}
	return "", fmt.Errorf("invalid split %q (valid: %v)", s, AllSplits())
}

// Laterality is the imaged side of the body.
type Laterality string

const (
	Left  Laterality = "LEFT"
	Right Laterality = "RIGHT"
)

// ParseLaterality parses a laterality, ignoring case.
func ParseLaterality(s string) (Laterality, error) {
	switch strings.ToUpper(s) {
	case string(Left):
		return Left, nil
	case string(Right):
		return Right, nil
	default:
		return "", fmt.Errorf("invalid laterality %q (valid: LEFT, RIGHT)", s)
	}
}

// View is the projection angle.
type View string

const (
	CC  View = "CC"  // craniocaudal
	MLO View = "MLO" // mediolateral oblique
)

// ParseView parses a view, ignoring case.
func ParseView(s string) (View, error) {
	switch strings.ToUpper(s) {
	case string(CC):
		return CC, nil
	case string(MLO):
		return MLO, nil
	default:
		return "", fmt.Errorf("invalid view %q (valid: CC, MLO)", s)
	}
}

// Identity is the structured form of a study directory name.
type Identity struct {
	LesionType LesionType
	Split      Split
	PatientID  string
	Laterality Laterality
	View       View

	// Overlay is the ROI index of a mask directory. Only its presence
	// (HasOverlay) matters downstream.
	Overlay    int
	HasOverlay bool

	// Dir is the directory name as found on disk.
	Dir string
}

// IsOverlay reports whether the directory holds a mask rather than the
// full-resolution image.
func (id Identity) IsOverlay() bool {
	return id.HasOverlay
}

// Root returns the directory name the identity was parsed from, or
// rebuilds it for identities constructed in code.
func (id Identity) Root() string {
	if id.Dir != "" {
		return id.Dir
	}
	root := fmt.Sprintf("%s-%s_%s_%s_%s", id.LesionType, id.Split, id.PatientID, id.Laterality, id.View)
	if id.HasOverlay {
		root += "_" + strconv.Itoa(id.Overlay)
	}
	return root
}

// ImageRoot returns the study directory name of the full image: Root
// without the overlay suffix. Every overlay directory of a key shares it.
func (id Identity) ImageRoot() string {
	root := id.Root()
	if !id.HasOverlay {
		return root
	}
	return root[:strings.LastIndex(root, "_")]
}

func (id Identity) String() string {
	return id.Root()
}

// Parse extracts an Identity from a study directory name. On failure it
// returns the zero Identity and an error wrapping ErrMalformedIdentity.
func Parse(name string) (Identity, error) {
	m := studyPattern.FindStringSubmatch(name)
	if m == nil {
		return Identity{}, fmt.Errorf("%w: %q does not match <LesionType>-<Split>_%s<id>_<Laterality>_<View>[_<n>]",
			ErrMalformedIdentity, name, PatientIDPrefix)
	}
	group := func(g string) string {
		return m[studyPattern.SubexpIndex(g)]
	}

	lesion, err := ParseLesionType(group("lesion_type"))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdentity, name, err)
	}
	split, err := ParseSplit(group("set"))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdentity, name, err)
	}
	laterality, err := ParseLaterality(group("direction"))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdentity, name, err)
	}
	view, err := ParseView(group("view"))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdentity, name, err)
	}
	patientID := group("patient_id")
	if len(patientID) == len(PatientIDPrefix) {
		return Identity{}, fmt.Errorf("%w: %q: empty patient id", ErrMalformedIdentity, name)
	}

	id := Identity{
		LesionType: lesion,
		Split:      split,
		PatientID:  patientID,
		Laterality: laterality,
		View:       view,
		Dir:        name,
	}
	if overlay := group("overlay"); overlay != "" {
		n, err := strconv.Atoi(overlay)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %q: overlay index: %v", ErrMalformedIdentity, name, err)
		}
		id.Overlay = n
		id.HasOverlay = true
	}
	return id, nil
}

// StudyDirOf returns the name of the directory three levels above a file,
// which is where CBIS-DDSM encodes the study identity:
// <study>/<study uid>/<series uid>/<file>.dcm
func StudyDirOf(path string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(path))))
}

// ParsePath parses the study directory of a file path.
func ParsePath(path string) (Identity, error) {
	id, err := Parse(StudyDirOf(path))
	if err != nil {
		return Identity{}, fmt.Errorf("parse study directory of %s: %w", path, err)
	}
	return id, nil
}
