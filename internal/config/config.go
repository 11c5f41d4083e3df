// Package config loads ddsmlabel settings from defaults, an optional YAML
// file, DDSMLABEL_* environment variables and command line flags.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
)

// EnvPrefix is the prefix of environment variables read by viper.
const EnvPrefix = "DDSMLABEL"

// Config holds every setting of a run.
type Config struct {
	DatasetRoot      string `mapstructure:"dataset_root"`
	DescriptionsDir  string `mapstructure:"descriptions_dir"`
	DescriptionTable string `mapstructure:"description_table"`
	LabelsFile       string `mapstructure:"labels_file"`

	LesionFilter  string  `mapstructure:"lesion_filter"`
	CropThreshold string  `mapstructure:"crop_threshold"`
	MinArea       int     `mapstructure:"min_area"`
	Workers       int     `mapstructure:"workers"`
	Tracer        string  `mapstructure:"tracer"`
	ScaleX        float64 `mapstructure:"scale_x"`
	ScaleY        float64 `mapstructure:"scale_y"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Mode  string `mapstructure:"mode"` // development or production
	Level string `mapstructure:"level"`
}

// Log modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset_root", "")
	v.SetDefault("descriptions_dir", "")
	v.SetDefault("description_table", "description.csv")
	v.SetDefault("labels_file", "labels.json")

	v.SetDefault("lesion_filter", "Mass")
	v.SetDefault("crop_threshold", "1MiB")
	v.SetDefault("min_area", geometry.DefaultMinArea)
	v.SetDefault("workers", 0)
	v.SetDefault("tracer", geometry.BuiltinTracer)
	v.SetDefault("scale_x", 1.0)
	v.SetDefault("scale_y", 1.0)

	v.SetDefault("log.mode", ModeDevelopment)
	v.SetDefault("log.level", "info")
}

// Load reads configFile when set and unmarshals the merged settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	if _, err := c.CropThresholdBytes(); err != nil {
		return err
	}
	if c.MinArea < 0 {
		return fmt.Errorf("min_area must be >= 0, got %d", c.MinArea)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if names := geometry.TracerNames(); !slices.Contains(names, c.Tracer) {
		return fmt.Errorf("unknown tracer %q (available: %s)", c.Tracer, strings.Join(names, ", "))
	}
	if c.ScaleX <= 0 || c.ScaleY <= 0 {
		return fmt.Errorf("scale factors must be > 0, got %g x %g", c.ScaleX, c.ScaleY)
	}
	if c.Log.Mode != ModeDevelopment && c.Log.Mode != ModeProduction {
		return fmt.Errorf("log.mode must be %s or %s, got %q", ModeDevelopment, ModeProduction, c.Log.Mode)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// CropThresholdBytes parses CropThreshold ("1MiB", "5 MB", ...).
func (c *Config) CropThresholdBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.CropThreshold)
	if err != nil {
		return 0, fmt.Errorf("invalid crop_threshold %q: %w", c.CropThreshold, err)
	}
	return int64(n), nil
}

// MetadataDir returns where the case description CSVs live: DescriptionsDir
// when set, the dataset root otherwise. The public release keeps them out of
// the image tree, so real runs usually set DescriptionsDir.
func (c *Config) MetadataDir() string {
	if c.DescriptionsDir != "" {
		return c.DescriptionsDir
	}
	return c.DatasetRoot
}

// RequireDatasetRoot fails when no dataset root was given and returns it
// cleaned otherwise.
func (c *Config) RequireDatasetRoot() (string, error) {
	if c.DatasetRoot == "" {
		return "", fmt.Errorf("dataset root is required")
	}
	return filepath.Clean(c.DatasetRoot), nil
}
