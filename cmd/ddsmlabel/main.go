package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mrsinham/ddsmlabel/internal/config"
	"github.com/mrsinham/ddsmlabel/internal/geometry"
	"github.com/mrsinham/ddsmlabel/internal/logging"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}
	defer func() { logging.Sync(a.logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ddsmlabel",
		Short:         "Index CBIS-DDSM and build bounding box labels",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	a.setupFlags(root)

	versionCmd := a.versionCommand()
	root.AddCommand(
		a.indexCommand(),
		a.labelsCommand(),
		a.runCommand(),
		a.synthCommand(),
		versionCmd,
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return a.initialize()
	}
	return root
}

// setupFlags defines the global flags and binds them to their config keys.
// Flag defaults mirror the config defaults so that help shows them.
func (a *app) setupFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Load configuration from YAML file")
	flags.String("descriptions-dir", a.v.GetString("descriptions_dir"), "Directory holding the case description CSVs (default: dataset root; the public release ships them apart, usually in a descriptions directory)")
	flags.String("description-table", a.v.GetString("description_table"), "Description table written by index and read by labels")
	flags.String("labels-file", a.v.GetString("labels_file"), "Label file written by labels")
	flags.String("lesion-filter", a.v.GetString("lesion_filter"), "Only index files under a directory whose name contains this")
	flags.String("crop-threshold", a.v.GetString("crop_threshold"), "ROI files smaller than this are cropped patches (e.g. '1MiB')")
	flags.Int("min-area", a.v.GetInt("min_area"), "Drop regions whose bounding box area is not above this")
	flags.Int("workers", a.v.GetInt("workers"), "Number of parallel workers (0 = CPU cores)")
	flags.String("tracer", a.v.GetString("tracer"), fmt.Sprintf("Contour tracer: %v", geometry.TracerNames()))
	flags.Float64("scale-x", a.v.GetFloat64("scale_x"), "Horizontal factor applied to x and width")
	flags.Float64("scale-y", a.v.GetFloat64("scale_y"), "Vertical factor applied to y and height")
	flags.String("log-mode", a.v.GetString("log.mode"), "Logger preset: development or production")
	flags.String("log-level", a.v.GetString("log.level"), "Log level: debug, info, warn, error")

	bindings := map[string]string{
		"descriptions_dir":  "descriptions-dir",
		"description_table": "description-table",
		"labels_file":       "labels-file",
		"lesion_filter":     "lesion-filter",
		"crop_threshold":    "crop-threshold",
		"min_area":          "min-area",
		"workers":           "workers",
		"tracer":            "tracer",
		"scale_x":           "scale-x",
		"scale_y":           "scale-y",
		"log.mode":          "log-mode",
		"log.level":         "log-level",
	}
	for key, name := range bindings {
		// Lookup cannot fail: every flag was defined above.
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
}

// initialize loads and validates the configuration and builds the logger.
func (a *app) initialize() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// banner prints the tool header on stdout.
func (a *app) banner() {
	fmt.Fprintln(a.stdout, "ddsmlabel")
	fmt.Fprintln(a.stdout, "=========")
}

// datasetRoot takes the root from the positional argument when given, from
// the configuration otherwise.
func (a *app) datasetRoot(args []string) (string, error) {
	if len(args) > 0 {
		a.cfg.DatasetRoot = args[0]
	}
	return a.cfg.RequireDatasetRoot()
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "ddsmlabel %s\n", version)
		},
	}
}
