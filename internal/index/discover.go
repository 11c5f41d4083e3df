package index

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultLesionFilter keeps mass cases and leaves calcifications out.
const DefaultLesionFilter = "Mass"

// Discover returns the DICOM files under root that have an ancestor
// directory (below root) whose name contains filter. An empty filter keeps
// every DICOM file. Paths are returned in lexical walk order.
func Discover(root, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".dcm") {
			return nil
		}
		if filter == "" || hasMatchingAncestor(root, path, filter) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func hasMatchingAncestor(root, path, filter string) bool {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}
	for _, dir := range strings.Split(rel, string(filepath.Separator)) {
		if strings.Contains(dir, filter) {
			return true
		}
	}
	return false
}
