// Package labels builds the label file: for every indexed image with a
// mask, the lesion bounding rectangles and the pathology.
package labels

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
	"github.com/mrsinham/ddsmlabel/internal/index"
)

// Entry is the label of one full image.
type Entry struct {
	BoundingRects []geometry.Rect `json:"bounding_rects"`
	Pathology     string          `json:"pathology"`
}

// Labels maps a full image path to its entry.
type Labels map[string]Entry

// Extractor returns the lesion rectangles of a mask file.
// *geometry.Extractor implements it.
type Extractor interface {
	Extract(path string) ([]geometry.Rect, error)
}

// Failure is a record whose mask could not be processed.
type Failure struct {
	ImagePath string
	MaskPath  string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.MaskPath, f.Err)
}

// Result is the outcome of a label build. Failures do not abort the build
// but must be reported by the caller.
type Result struct {
	Labels   Labels
	Failures []Failure
	Skipped  int // records without an image or a mask
}

// Options configures a Builder.
type Options struct {
	Workers int // parallel workers, runtime.NumCPU() when <= 0

	// ScaleX and ScaleY remap rectangles to another resolution.
	// Zero means 1.
	ScaleX, ScaleY float64

	// ProgressCallback, when set, is called after each processed record.
	ProgressCallback func(current, total int)
}

// Builder turns indexed records into labels.
type Builder struct {
	extractor Extractor
	logger    *zap.Logger
	opts      Options
}

// NewBuilder creates a builder. A nil logger discards logs.
func NewBuilder(extractor Extractor, logger *zap.Logger, opts Options) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ScaleX == 0 {
		opts.ScaleX = 1
	}
	if opts.ScaleY == 0 {
		opts.ScaleY = 1
	}
	return &Builder{extractor: extractor, logger: logger, opts: opts}
}

type task struct {
	record index.Record
}

type taskResult struct {
	record index.Record
	rects  []geometry.Rect
	err    error
}

// Build extracts the rectangles of every record that has both an image and
// a mask. It only returns an error when ctx is cancelled.
func (b *Builder) Build(ctx context.Context, records []index.Record) (*Result, error) {
	res := &Result{Labels: make(Labels)}

	var tasks []task
	for _, rec := range records {
		if !rec.Complete() {
			res.Skipped++
			continue
		}
		tasks = append(tasks, task{record: rec})
	}
	if res.Skipped > 0 {
		b.logger.Debug("skipping records without image or mask", zap.Int("skipped", res.Skipped))
	}
	if len(tasks) == 0 {
		return res, ctx.Err()
	}

	numWorkers := min(b.opts.Workers, len(tasks))
	b.logger.Info("extracting bounding rectangles",
		zap.Int("masks", len(tasks)),
		zap.Int("workers", numWorkers))

	taskChan := make(chan task)
	resultChan := make(chan taskResult, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				rects, err := b.extractor.Extract(t.record.MaskPath)
				resultChan <- taskResult{record: t.record, rects: rects, err: err}
			}
		}()
	}

	go func() {
		defer close(taskChan)
		for _, t := range tasks {
			select {
			case taskChan <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for r := range resultChan {
		completed++
		if b.opts.ProgressCallback != nil {
			b.opts.ProgressCallback(completed, len(tasks))
		}
		if completed%10 == 0 || completed == len(tasks) {
			b.logger.Debug("label progress", zap.Int("done", completed), zap.Int("total", len(tasks)))
		}

		if r.err != nil {
			b.logger.Warn("mask skipped",
				zap.String("mask_path", r.record.MaskPath),
				zap.String("image_path", r.record.ImagePath),
				zap.Error(r.err))
			res.Failures = append(res.Failures, Failure{
				ImagePath: r.record.ImagePath,
				MaskPath:  r.record.MaskPath,
				Err:       r.err,
			})
			continue
		}

		rects := geometry.ScaleAll(r.rects, b.opts.ScaleX, b.opts.ScaleY)
		res.Labels[r.record.ImagePath] = Entry{BoundingRects: rects, Pathology: r.record.Pathology}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build labels: %w", err)
	}

	sortFailures(res.Failures)
	b.logger.Info("labels built",
		zap.Int("entries", len(res.Labels)),
		zap.Int("failures", len(res.Failures)),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
