package labels

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// WriteJSON encodes labels as an indented JSON object keyed by image path.
func WriteJSON(w io.Writer, l Labels) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}

// ReadJSON decodes a label file.
func ReadJSON(r io.Reader) (Labels, error) {
	var l Labels
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return l, nil
}

// WriteFile writes labels to path.
func WriteFile(path string, l Labels) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create label file: %w", err)
	}
	if err := WriteJSON(f, l); err != nil {
		_ = f.Close()
		return fmt.Errorf("write label file %s: %w", path, err)
	}
	return f.Close()
}

// ReadFile reads labels from path.
func ReadFile(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open label file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadJSON(f)
}

func sortFailures(failures []Failure) {
	slices.SortFunc(failures, func(a, b Failure) int {
		return strings.Compare(a.MaskPath, b.MaskPath)
	})
}
