package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwiqc/internal/models"
	"dwiqc/pkg/nifti"
)

func writeVolumes(t *testing.T, dir string) (atlasPath, nodifPath string) {
	t.Helper()

	nodif := models.NewVolume(12, 12, 12)
	atlas := models.NewVolume(12, 12, 12)
	for z := 2; z < 10; z++ {
		for y := 2; y < 10; y++ {
			for x := 2; x < 10; x++ {
				nodif.Set(x, y, z, float64(x+y+z))
				if x > 4 && x < 8 {
					atlas.Set(x, y, z, 1)
				}
			}
		}
	}

	atlasPath = filepath.Join(dir, "atlas.nii")
	nodifPath = filepath.Join(dir, "nodif_brain.nii.gz")
	require.NoError(t, nifti.Write(atlasPath, atlas))
	require.NoError(t, nifti.Write(nodifPath, nodif))
	return atlasPath, nodifPath
}

func TestOverlayCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	dir := t.TempDir()
	atlasPath, nodifPath := writeVolumes(t, dir)

	configPath := filepath.Join(dir, "dwiqc.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("overlay:\n  dpi: 10\nlogging:\n  level: disabled\n"), 0644))

	outputDir := t.TempDir()

	var out bytes.Buffer
	cmd := newCommand(&out)
	cmd.SetArgs([]string{
		"--subjid", "sub-01",
		"--atlas", "aal",
		"--atlas_image", atlasPath,
		"--nodif", nodifPath,
		"--output", outputDir,
		"--config", configPath,
	})
	require.NoError(t, cmd.Execute())

	want := filepath.Join(outputDir, "sub-01label-aal_overlay.png")
	assert.Equal(t, "Overlay file saved: "+want+"\n", out.String())
	_, err := os.Stat(want)
	assert.NoError(t, err)
}

func TestOverlayCommandRequiresFlags(t *testing.T) {
	var out bytes.Buffer
	cmd := newCommand(&out)
	cmd.SetArgs([]string{"--subjid", "sub-01"})
	assert.Error(t, cmd.Execute())
	assert.Empty(t, out.String())
}
