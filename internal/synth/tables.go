package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mrsinham/ddsmlabel/internal/identity"
	"github.com/mrsinham/ddsmlabel/internal/metadata"
)

// Column layouts of the released tables. Calc tables spell the density
// column differently.
var (
	massColumns = []string{
		metadata.ColumnPatientID, "breast_density", "left or right breast", "image view",
		metadata.ColumnAbnormalityID, "abnormality type", "mass shape", "mass margins",
		"assessment", metadata.ColumnPathology, "subtlety",
		metadata.ColumnImagePath, metadata.ColumnCroppedPath, metadata.ColumnMaskPath,
	}
	calcColumns = []string{
		metadata.ColumnPatientID, "breast density", "left or right breast", "image view",
		metadata.ColumnAbnormalityID, "abnormality type", "calc type", "calc distribution",
		"assessment", metadata.ColumnPathology, "subtlety",
		metadata.ColumnImagePath, metadata.ColumnCroppedPath, metadata.ColumnMaskPath,
	}
)

// caseTable builds the description table of key from the generated cases.
// Paths are relative to the dataset directory, as in the release.
func caseTable(key metadata.Key, cases []Case, root string) (*metadata.Table, error) {
	table := &metadata.Table{Key: key, Columns: massColumns}
	if key.LesionType == identity.Calc {
		table.Columns = calcColumns
	}
	base := filepath.Join(root, DatasetDir)

	for i, c := range cases {
		if c.Key != key {
			continue
		}
		rel := func(path string) (string, error) {
			r, err := filepath.Rel(base, path)
			if err != nil {
				return "", fmt.Errorf("relative path of %s: %w", path, err)
			}
			return filepath.ToSlash(r), nil
		}
		image, err := rel(c.ImagePath)
		if err != nil {
			return nil, err
		}
		mask, err := rel(c.MaskPath)
		if err != nil {
			return nil, err
		}
		cropped, err := rel(c.CropPath)
		if err != nil {
			return nil, err
		}

		row := metadata.Record{
			metadata.ColumnPatientID:     c.PatientID,
			"left or right breast":       string(c.Laterality),
			"image view":                 string(c.View),
			metadata.ColumnAbnormalityID: "1",
			"assessment":                 strconv.Itoa(2 + i%4),
			metadata.ColumnPathology:     c.Pathology,
			"subtlety":                   strconv.Itoa(1 + i%5),
			metadata.ColumnImagePath:     image,
			metadata.ColumnCroppedPath:   cropped,
		}
		// The release ends mask paths with a newline.
		row[metadata.ColumnMaskPath] = mask + "\n"
		if key.LesionType == identity.Calc {
			row["breast density"] = strconv.Itoa(1 + i%4)
			row["abnormality type"] = "calcification"
			row["calc type"] = "PLEOMORPHIC"
			row["calc distribution"] = "CLUSTERED"
		} else {
			row["breast_density"] = strconv.Itoa(1 + i%4)
			row["abnormality type"] = "mass"
			row["mass shape"] = "OVAL"
			row["mass margins"] = "CIRCUMSCRIBED"
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func writeCaseTable(path string, key metadata.Key, cases []Case, root string) error {
	table, err := caseTable(key, cases, root)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s table: %w", key, err)
	}
	if err := metadata.WriteTable(f, table); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s table: %w", key, err)
	}
	return f.Close()
}
