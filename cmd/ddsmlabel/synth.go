package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrsinham/ddsmlabel/internal/metadata"
	"github.com/mrsinham/ddsmlabel/internal/synth"
)

func (a *app) synthCommand() *cobra.Command {
	var (
		opts   synth.Options
		tables []string
	)
	cmd := &cobra.Command{
		Use:   "synth <output-dir>",
		Short: "Generate a synthetic dataset laid out like CBIS-DDSM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OutputDir = args[0]
			opts.Workers = a.cfg.Workers
			opts.Logger = a.logger
			keys, err := parseTables(tables)
			if err != nil {
				return err
			}
			opts.Tables = keys

			a.banner()
			fmt.Fprintf(a.stdout, "Generating %d cases per table (%dx%d) in %s\n",
				opts.CasesPerTable, opts.Width, opts.Height, opts.OutputDir)
			res, err := synth.Generate(opts)
			if err != nil {
				return fmt.Errorf("generate dataset: %w", err)
			}

			fmt.Fprintln(a.stdout, "\n✓ Generation complete!")
			fmt.Fprintf(a.stdout, "  Cases: %d\n", len(res.Cases))
			fmt.Fprintf(a.stdout, "  Dataset root: %s\n", res.Root)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.CasesPerTable, "cases", 2, "Cases per description table")
	cmd.Flags().IntVar(&opts.Width, "width", 1280, "Full image width")
	cmd.Flags().IntVar(&opts.Height, "height", 1024, "Full image height")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Seed for reproducibility (derived from the output directory if not specified)")
	cmd.Flags().BoolVar(&opts.NoiseSpeck, "speck", false, "Add a small noise speck to every mask")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to fill, e.g. 'Mass/Training,Calc/Test' (default: all)")
	return cmd
}

// parseTables turns "Mass/Training" style names into table keys.
func parseTables(names []string) ([]metadata.Key, error) {
	var keys []metadata.Key
	for _, name := range names {
		found := false
		for _, key := range metadata.AllKeys() {
			if key.String() == name {
				keys = append(keys, key)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown table %q", name)
		}
	}
	return keys, nil
}
