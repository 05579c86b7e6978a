package overlay

import (
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwiqc/internal/models"
	"dwiqc/pkg/config"
	"dwiqc/pkg/nifti"
)

// createTestPair builds a spherical "brain" background and a two-region
// atlas on the same 2mm grid
func createTestPair() (atlas, background *models.Volume) {
	size := 20
	affine := [16]float64{
		2, 0, 0, -20,
		0, 2, 0, -20,
		0, 0, 2, -20,
		0, 0, 0, 1,
	}

	background = models.NewVolume(size, size, size)
	atlas = models.NewVolume(size, size, size)
	for _, v := range []*models.Volume{background, atlas} {
		v.Affine = affine
		v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 2, 2, 2
	}

	center := float64(size) / 2
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-center, float64(y)-center, float64(z)-center
				dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if dist < 8 {
					background.Set(x, y, z, 1000-50*dist)
				}
				if dist < 5 {
					label := 1.0
					if x >= size/2 {
						label = 2
					}
					atlas.Set(x, y, z, label)
				}
			}
		}
	}
	return atlas, background
}

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Overlay.DPI = 20
	return cfg
}

func writePair(t *testing.T, dir string) (atlasPath, bgPath string) {
	t.Helper()
	atlas, background := createTestPair()
	atlasPath = filepath.Join(dir, "atlas.nii.gz")
	bgPath = filepath.Join(dir, "nodif_brain.nii")
	require.NoError(t, nifti.Write(atlasPath, atlas))
	require.NoError(t, nifti.Write(bgPath, background))
	return atlasPath, bgPath
}

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, "sub-01_label-aal116_overlay.png", OutputFilename("sub-01_", "aal116"))
	assert.Equal(t, "sub-01label-aal_overlay.png", OutputFilename("sub-01", "aal"))
}

func TestNewRendererRejectsUnknownColormap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Overlay.Colormap = "rainbow"

	_, err := NewRenderer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRenderWritesSinglePNG(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	inputDir := t.TempDir()
	outputDir := t.TempDir()
	atlasPath, bgPath := writePair(t, inputDir)

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	path, err := renderer.Render("sub-01", "aal", atlasPath, bgPath, outputDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "sub-01label-aal_overlay.png"), path)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sub-01label-aal_overlay.png", entries[0].Name())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestRenderMissingOutputDirectory(t *testing.T) {
	inputDir := t.TempDir()
	atlasPath, bgPath := writePair(t, inputDir)
	missing := filepath.Join(t.TempDir(), "qc")

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = renderer.Render("sub-01", "aal", atlasPath, bgPath, missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "output directory must not be created")
}

func TestRenderOutputIsFile(t *testing.T) {
	dir := t.TempDir()
	atlasPath, bgPath := writePair(t, dir)

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = renderer.Render("sub-01", "aal", atlasPath, bgPath, atlasPath)
	assert.Error(t, err)
}

func TestRenderUnreadableImages(t *testing.T) {
	dir := t.TempDir()
	atlasPath, bgPath := writePair(t, dir)
	outputDir := t.TempDir()

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = renderer.Render("sub-01", "aal", filepath.Join(dir, "missing.nii"), bgPath, outputDir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	notNifti := filepath.Join(dir, "bvals.txt")
	require.NoError(t, os.WriteFile(notNifti, []byte("0 1000 2000\n"), 0644))
	_, err = renderer.Render("sub-01", "aal", atlasPath, notNifti, outputDir)
	assert.Error(t, err)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComposeDrawsAtlasColours(t *testing.T) {
	atlas, background := createTestPair()

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	fig, err := renderer.Compose(atlas, background)
	require.NoError(t, err)
	assert.Equal(t, 400, fig.Bounds().Dx())
	assert.Equal(t, 200, fig.Bounds().Dy())

	// Grey background and white text have R == B; winter-coloured atlas
	// voxels are blue-green
	coloured := map[int]int{}
	for y := 0; y < fig.Bounds().Dy(); y++ {
		for x := 0; x < fig.Bounds().Dx(); x++ {
			c := fig.NRGBAAt(x, y)
			if c.B > c.R {
				coloured[y/100]++
			}
		}
	}
	assert.Positive(t, coloured[0], "coronal panel shows atlas regions")
	assert.Positive(t, coloured[1], "axial panel shows atlas regions")
}

func TestComposeWithoutLabels(t *testing.T) {
	_, background := createTestPair()
	empty := models.NewVolume(background.Width, background.Height, background.Depth)
	empty.Affine = background.Affine

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	fig, err := renderer.Compose(empty, background)
	require.NoError(t, err)

	for y := 0; y < fig.Bounds().Dy(); y++ {
		for x := 0; x < fig.Bounds().Dx(); x++ {
			c := fig.NRGBAAt(x, y)
			require.Equal(t, c.R, c.B, "pixel (%d,%d) should be grey", x, y)
		}
	}
}

func TestComposeReorientsBackground(t *testing.T) {
	atlas, background := createTestPair()

	// Same data stored left-right flipped with a matching affine
	flipped := models.NewVolume(background.Width, background.Height, background.Depth)
	flipped.VoxelSize = background.VoxelSize
	flipped.Affine = background.Affine
	flipped.Affine[0] = -2
	flipped.Affine[3] = 18
	for z := 0; z < background.Depth; z++ {
		for y := 0; y < background.Height; y++ {
			for x := 0; x < background.Width; x++ {
				flipped.Set(background.Width-1-x, y, z, background.At(x, y, z))
			}
		}
	}

	renderer, err := NewRenderer(smallConfig(), zerolog.Nop())
	require.NoError(t, err)

	want, err := renderer.Compose(atlas, background)
	require.NoError(t, err)
	got, err := renderer.Compose(atlas, flipped)
	require.NoError(t, err)

	assert.Equal(t, want.Pix, got.Pix)
}
