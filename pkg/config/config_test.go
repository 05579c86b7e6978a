package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.8, cfg.Overlay.Alpha)
	assert.Equal(t, "winter", cfg.Overlay.Colormap)
	assert.Equal(t, 20.0, cfg.Overlay.FigureWidth)
	assert.Equal(t, 10.0, cfg.Overlay.FigureHeight)
	assert.Equal(t, 100, cfg.Overlay.DPI)
	assert.Equal(t, 7, cfg.Overlay.Cuts)
	assert.Equal(t, 1000.0, cfg.Bvals.Base)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Nil(t, cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dwiqc.yaml")
	content := "overlay:\n  alpha: 0.5\n  cuts: 3\nbvals:\n  base: 500\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Overlay.Alpha)
	assert.Equal(t, 3, cfg.Overlay.Cuts)
	assert.Equal(t, 500.0, cfg.Bvals.Base)
	// Untouched keys keep their defaults
	assert.Equal(t, "winter", cfg.Overlay.Colormap)
	assert.Equal(t, 100, cfg.Overlay.DPI)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"alpha":       "overlay:\n  alpha: 1.5\n",
		"dpi":         "overlay:\n  dpi: 0\n",
		"cuts":        "overlay:\n  cuts: -1\n",
		"percentiles": "overlay:\n  lowPercentile: 0.9\n  highPercentile: 0.1\n",
		"base":        "bvals:\n  base: 0\n",
		"syntax":      "overlay: [unterminated\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dwiqc.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
