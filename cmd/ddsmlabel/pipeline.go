package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
	"github.com/mrsinham/ddsmlabel/internal/index"
	"github.com/mrsinham/ddsmlabel/internal/labels"
	"github.com/mrsinham/ddsmlabel/internal/metadata"
)

func (a *app) indexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index [dataset-root]",
		Short: "Build the description table of a dataset",
		Long: `Walk the dataset root, pair every full mammogram with its ROI mask,
attach the pathology from the case description CSVs and write the
description table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(args)
			if err != nil {
				return err
			}
			a.banner()
			_, err = a.index(cmd.Context(), root)
			return err
		},
	}
}

func (a *app) labelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Build the label file from the description table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.banner()
			records, err := index.ReadTableFile(a.cfg.DescriptionTable)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Loaded %d records from %s\n", len(records), a.cfg.DescriptionTable)
			return a.label(cmd.Context(), records)
		},
	}
}

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [dataset-root]",
		Short: "Index a dataset and build its label file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(args)
			if err != nil {
				return err
			}
			a.banner()
			records, err := a.index(cmd.Context(), root)
			if err != nil {
				return err
			}
			return a.label(cmd.Context(), records)
		},
	}
}

// index builds and writes the description table of root.
func (a *app) index(ctx context.Context, root string) ([]index.Record, error) {
	store, err := metadata.NewStore(metadata.DirLoader{Dir: a.cfg.MetadataDir()})
	if err != nil {
		return nil, err
	}
	crop, err := index.NewSizeFilter(a.cfg.CropThreshold)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.stdout, "Indexing %s (filter %q, cropped when %s)\n", root, a.cfg.LesionFilter, crop)
	indexer := index.NewIndexer(store, crop, a.logger, index.Options{
		LesionFilter: a.cfg.LesionFilter,
		Workers:      a.cfg.Workers,
	})
	records, err := indexer.Build(ctx, root)
	if err != nil {
		return nil, err
	}

	if err := index.WriteTableFile(a.cfg.DescriptionTable, records); err != nil {
		return nil, err
	}
	complete := 0
	for _, r := range records {
		if r.Complete() {
			complete++
		}
	}
	a.logger.Debug("description tables loaded", zap.Int64("loads", store.Loads()))
	fmt.Fprintf(a.stdout, "✓ Indexed %d records (%d with image and mask)\n", len(records), complete)
	fmt.Fprintf(a.stdout, "  Description table: %s\n", a.cfg.DescriptionTable)
	return records, nil
}

// label extracts the rectangles of records and writes the label file.
// Masks that fail to decode are listed but do not fail the command.
func (a *app) label(ctx context.Context, records []index.Record) error {
	tracer, err := geometry.NewTracer(a.cfg.Tracer)
	if err != nil {
		return err
	}
	extractor := geometry.NewExtractor(tracer)
	extractor.MinArea = a.cfg.MinArea

	builder := labels.NewBuilder(extractor, a.logger, labels.Options{
		Workers: a.cfg.Workers,
		ScaleX:  a.cfg.ScaleX,
		ScaleY:  a.cfg.ScaleY,
	})
	res, err := builder.Build(ctx, records)
	if err != nil {
		return err
	}
	if err := labels.WriteFile(a.cfg.LabelsFile, res.Labels); err != nil {
		return err
	}

	rects := 0
	for _, e := range res.Labels {
		rects += len(e.BoundingRects)
	}
	fmt.Fprintf(a.stdout, "✓ Labelled %s images with %s bounding boxes\n",
		humanize.Comma(int64(len(res.Labels))), humanize.Comma(int64(rects)))
	if res.Skipped > 0 {
		fmt.Fprintf(a.stdout, "  Skipped %d records without image or mask\n", res.Skipped)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(a.stderr, "Warning: %d masks could not be decoded:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(a.stderr, "  %v\n", f)
		}
	}
	fmt.Fprintf(a.stdout, "  Label file: %s\n", a.cfg.LabelsFile)
	return nil
}
