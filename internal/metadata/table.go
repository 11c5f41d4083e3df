// Package metadata loads the CBIS-DDSM case description tables and answers
// pathology lookups against them.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// Column names used by the pipeline. The tables carry more columns
// (breast density, assessment, subtlety...) which are kept verbatim.
const (
	ColumnPatientID     = "patient_id"
	ColumnImagePath     = "image file path"
	ColumnMaskPath      = "ROI mask file path"
	ColumnCroppedPath   = "cropped image file path"
	ColumnPathology     = "pathology"
	ColumnAbnormalityID = "abnormality id"
)

// RequiredColumns must be present in every table.
var RequiredColumns = []string{ColumnImagePath, ColumnMaskPath, ColumnCroppedPath, ColumnPathology}

// ErrMissingColumn is returned when a table lacks one of RequiredColumns.
var ErrMissingColumn = errors.New("missing required column")

// Key identifies one of the four description tables.
type Key struct {
	LesionType identity.LesionType
	Split      identity.Split
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.LesionType, k.Split)
}

// AllKeys returns the four tables of the dataset.
func AllKeys() []Key {
	keys := make([]Key, 0, 4)
	for _, l := range identity.AllLesionTypes() {
		for _, s := range identity.AllSplits() {
			keys = append(keys, Key{LesionType: l, Split: s})
		}
	}
	return keys
}

// FileName returns the file name the dataset uses for the table.
func (k Key) FileName() string {
	lesion := "mass"
	if k.LesionType == identity.Calc {
		lesion = "calc"
	}
	split := "train"
	if k.Split == identity.Test {
		split = "test"
	}
	return fmt.Sprintf("%s_case_description_%s_set.csv", lesion, split)
}

// Record is one row of a description table.
type Record map[string]string

// Get returns a column value, or "" when the column is absent.
func (r Record) Get(column string) string {
	return r[column]
}

// Table is a loaded description table. Rows keep file order.
type Table struct {
	Key     Key
	Source  string
	Columns []string
	Rows    []Record
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// FirstWithPrefix returns the first row, in table order, whose column value
// starts with prefix.
func (t *Table) FirstWithPrefix(column, prefix string) (Record, bool) {
	for _, row := range t.Rows {
		if strings.HasPrefix(row[column], prefix) {
			return row, true
		}
	}
	return nil, false
}

// ReadTable parses a description table from CSV. Header names are trimmed
// since some releases pad them with spaces.
func ReadTable(r io.Reader, key Key, source string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", source, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	for _, col := range RequiredColumns {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("%s: %w %q", source, ErrMissingColumn, col)
		}
	}

	table := &Table{Key: key, Source: source, Columns: header}
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", source, line, err)
		}
		row := make(Record, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// WriteTable writes a table back to CSV with its original column order.
func WriteTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	fields := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			fields[i] = row[col]
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Loader reads one description table.
type Loader interface {
	Load(key Key) (*Table, error)
}

// DirLoader reads the tables from a descriptions directory using the
// dataset's file names.
type DirLoader struct {
	Dir string
}

// Load implements Loader.
func (l DirLoader) Load(key Key) (*Table, error) {
	path := filepath.Join(l.Dir, key.FileName())
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s table: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	return ReadTable(f, key, path)
}

// MemoryLoader serves tables held in memory.
type MemoryLoader map[Key]*Table

// Load implements Loader.
func (m MemoryLoader) Load(key Key) (*Table, error) {
	t, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("no %s table", key)
	}
	return t, nil
}
