package index

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrsinham/ddsmlabel/internal/identity"
)

// Options configures an Indexer.
type Options struct {
	LesionFilter string // ancestor directory substring, DefaultLesionFilter when empty
	Workers      int    // parallel workers, runtime.NumCPU() when <= 0

	// ProgressCallback, when set, is called after each file from the
	// worker goroutines.
	ProgressCallback func(current, total int)
}

// Indexer discovers DICOM files under a dataset root and merges them into
// image records.
type Indexer struct {
	lookup PathologyLookup
	crop   CropFilter
	logger *zap.Logger
	opts   Options
}

// NewIndexer creates an indexer. A nil logger discards logs.
func NewIndexer(lookup PathologyLookup, crop CropFilter, logger *zap.Logger, opts Options) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LesionFilter == "" {
		opts.LesionFilter = DefaultLesionFilter
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Indexer{lookup: lookup, crop: crop, logger: logger, opts: opts}
}

// Build indexes root. Parse and metadata errors abort the whole run: a
// partial index cannot be trusted.
func (ix *Indexer) Build(ctx context.Context, root string) ([]Record, error) {
	files, err := Discover(root, ix.opts.LesionFilter)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("discovered candidate files",
		zap.String("root", root),
		zap.String("lesion_filter", ix.opts.LesionFilter),
		zap.Int("files", len(files)))

	merger := NewMerger(ix.lookup, ix.crop)
	if err := ix.mergeAll(ctx, merger, files); err != nil {
		return nil, err
	}

	stats := merger.Stats()
	ix.logger.Info("index built",
		zap.Int("records", merger.Len()),
		zap.Int("images", stats.Images),
		zap.Int("masks", stats.Masks),
		zap.Int("cropped", stats.Cropped),
		zap.Int("lookups", stats.Lookups))
	if stats.Conflicts > 0 {
		ix.logger.Warn("several files claimed the same image or mask slot",
			zap.Int("conflicts", stats.Conflicts))
	}

	records := merger.Records()
	for _, rec := range records {
		if !rec.Complete() {
			ix.logger.Debug("record is missing a counterpart",
				zap.String("patient_id", rec.PatientID),
				zap.String("laterality", string(rec.Laterality)),
				zap.String("view", string(rec.View)),
				zap.Bool("has_image", rec.HasImage()),
				zap.Bool("has_mask", rec.HasMask()))
		}
	}
	return records, nil
}

func (ix *Indexer) mergeAll(parent context.Context, merger *Merger, files []string) error {
	workers := min(ix.opts.Workers, max(len(files), 1))
	g, ctx := errgroup.WithContext(parent)
	g.SetLimit(workers)

	var completed atomic.Int64
	total := len(files)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := identity.ParsePath(path)
			if err != nil {
				return err
			}
			if _, err := merger.Merge(id, path); err != nil {
				return err
			}

			done := int(completed.Add(1))
			if ix.opts.ProgressCallback != nil {
				ix.opts.ProgressCallback(done, total)
			}
			if done%100 == 0 || done == total {
				ix.logger.Debug("indexing progress", zap.Int("done", done), zap.Int("total", total))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}
