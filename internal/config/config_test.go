package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "Mass", cfg.LesionFilter)
	assert.Equal(t, "1MiB", cfg.CropThreshold)
	assert.Equal(t, 10, cfg.MinArea)
	assert.Equal(t, "builtin", cfg.Tracer)
	assert.Equal(t, "description.csv", cfg.DescriptionTable)
	assert.Equal(t, "labels.json", cfg.LabelsFile)
	assert.Equal(t, 1.0, cfg.ScaleX)
	assert.Equal(t, ModeDevelopment, cfg.Log.Mode)
	require.NoError(t, cfg.Validate())

	n, err := cfg.CropThresholdBytes()
	require.NoError(t, err)
	assert.EqualValues(t, 1<<20, n)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddsmlabel.yaml")
	yaml := `dataset_root: /data/CBIS-DDSM
crop_threshold: 5MiB
min_area: 25
log:
  mode: production
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("DDSMLABEL_WORKERS", "3")
	t.Setenv("DDSMLABEL_LOG_LEVEL", "warn")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/data/CBIS-DDSM", cfg.DatasetRoot)
	assert.Equal(t, "5MiB", cfg.CropThreshold)
	assert.Equal(t, 25, cfg.MinArea)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, ModeProduction, cfg.Log.Mode)
	assert.Equal(t, "warn", cfg.Log.Level, "environment overrides the file")
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"permissive threshold", func(c *Config) { c.CropThreshold = "5 MiB" }, false},
		{"bad threshold", func(c *Config) { c.CropThreshold = "big" }, true},
		{"negative min area", func(c *Config) { c.MinArea = -1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"unknown tracer", func(c *Config) { c.Tracer = "magic" }, true},
		{"zero scale", func(c *Config) { c.ScaleY = 0 }, true},
		{"bad log mode", func(c *Config) { c.Log.Mode = "verbose" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{DatasetRoot: "/data/root/"}
	assert.Equal(t, "/data/root/", cfg.MetadataDir())

	cfg.DescriptionsDir = "/data/csv"
	assert.Equal(t, "/data/csv", cfg.MetadataDir())

	root, err := cfg.RequireDatasetRoot()
	require.NoError(t, err)
	assert.Equal(t, "/data/root", root)

	_, err = (&Config{}).RequireDatasetRoot()
	assert.Error(t, err)
}
