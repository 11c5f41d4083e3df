package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// Columns of the description table, in output order.
var Columns = []string{"lesion_type", "set", "patient_id", "direction", "view", "pathology", "path", "mask_path"}

// ErrBadTable is returned when a description table cannot be read back.
var ErrBadTable = errors.New("bad description table")

// WriteTable writes records as a description table.
func WriteTable(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			string(r.LesionType),
			string(r.Split),
			r.PatientID,
			string(r.Laterality),
			string(r.View),
			r.Pathology,
			r.ImagePath,
			r.MaskPath,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableFile writes records to path.
func WriteTableFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create description table: %w", err)
	}
	if err := WriteTable(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write description table %s: %w", path, err)
	}
	return f.Close()
}

// ReadTable reads a description table. Columns are matched by header name,
// so an extra leading index column (as pandas writes it) is ignored.
func ReadTable(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadTable, err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, col := range Columns {
		if _, ok := pos[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadTable, col)
		}
	}

	var records []Record
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadTable, line, err)
		}
		get := func(col string) string {
			if i := pos[col]; i < len(fields) {
				return fields[i]
			}
			return ""
		}
		rec, err := recordFromRow(get)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadTable, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadTableFile reads a description table from path.
func ReadTableFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open description table: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func recordFromRow(get func(string) string) (Record, error) {
	lesion, err := identity.ParseLesionType(get("lesion_type"))
	if err != nil {
		return Record{}, err
	}
	split, err := identity.ParseSplit(get("set"))
	if err != nil {
		return Record{}, err
	}
	laterality, err := identity.ParseLaterality(get("direction"))
	if err != nil {
		return Record{}, err
	}
	view, err := identity.ParseView(get("view"))
	if err != nil {
		return Record{}, err
	}
	return Record{
		LesionType: lesion,
		Split:      split,
		PatientID:  get("patient_id"),
		Laterality: laterality,
		View:       view,
		Pathology:  get("pathology"),
		ImagePath:  get("path"),
		MaskPath:   get("mask_path"),
	}, nil
}
