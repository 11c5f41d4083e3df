package metadata

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// ErrNoMatchingRecord means no row of a table has a path starting with the
// requested prefix. It signals drift between the image tree and the tables
// and must not be defaulted away.
var ErrNoMatchingRecord = errors.New("no matching record")

// tableCapacity bounds the cache; the dataset only has four tables.
const tableCapacity = 4

// Store caches loaded description tables for the lifetime of a run.
// It is safe for concurrent use.
type Store struct {
	loader Loader
	tables *lru.Cache[Key, *Table]
	group  singleflight.Group
	loads  atomic.Int64
}

// NewStore creates a store reading tables through loader.
func NewStore(loader Loader) (*Store, error) {
	if loader == nil {
		return nil, fmt.Errorf("metadata loader is required")
	}
	cache, err := lru.New[Key, *Table](tableCapacity)
	if err != nil {
		return nil, fmt.Errorf("create table cache: %w", err)
	}
	return &Store{loader: loader, tables: cache}, nil
}

// Load returns the table for (lesion type, split), reading it on first use.
// Concurrent first calls for the same key share a single read.
func (s *Store) Load(key Key) (*Table, error) {
	if t, ok := s.tables.Get(key); ok {
		return t, nil
	}
	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		if t, ok := s.tables.Get(key); ok {
			return t, nil
		}
		t, err := s.loader.Load(key)
		if err != nil {
			return nil, err
		}
		s.loads.Add(1)
		s.tables.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s description table: %w", key, err)
	}
	return v.(*Table), nil
}

// Warm loads every table up front so that concurrent lookups only read.
func (s *Store) Warm() error {
	for _, key := range AllKeys() {
		if _, err := s.Load(key); err != nil {
			return err
		}
	}
	return nil
}

// Loads returns how many times the underlying loader was invoked.
func (s *Store) Loads() int64 {
	return s.loads.Load()
}

// LookupPathology returns the pathology of the first row whose mask path
// (overlay) or image path (full image) starts with prefix.
func (s *Store) LookupPathology(lesion identity.LesionType, split identity.Split, isOverlay bool, prefix string) (string, error) {
	key := Key{LesionType: lesion, Split: split}
	table, err := s.Load(key)
	if err != nil {
		return "", err
	}

	column := ColumnImagePath
	if isOverlay {
		column = ColumnMaskPath
	}
	row, ok := table.FirstWithPrefix(column, prefix)
	if !ok {
		return "", fmt.Errorf("%w: no %q in %s table (%s) starts with %q",
			ErrNoMatchingRecord, column, key, table.Source, prefix)
	}
	return row.Get(ColumnPathology), nil
}
