// Package overlay renders an atlas segmentation over a reference image as a
// two-panel PNG used for registration quality control.
//
// The first panel is a strip of coronal cuts, the second a strip of axial
// cuts. Atlas regions are drawn semi-transparent over the grayscale
// background, without crosshairs or colorbar.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"dwiqc/internal/models"
	"dwiqc/pkg/config"
	"dwiqc/pkg/nifti"
	"dwiqc/pkg/visualization"
)

// PanelAxes lists the cut axis of each panel, top to bottom
var PanelAxes = []string{"y", "z"}

// OutputFilename returns the name of the overlay PNG. Identifiers are used
// verbatim.
func OutputFilename(subjectID, atlasLabel string) string {
	return subjectID + "label-" + atlasLabel + "_overlay.png"
}

// Renderer builds and saves overlay figures
type Renderer struct {
	cfg      *config.Config
	colormap visualization.Colormap
	logger   zerolog.Logger
}

// NewRenderer creates a renderer using the overlay section of cfg
func NewRenderer(cfg *config.Config, logger zerolog.Logger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cm, err := visualization.ColormapByName(cfg.Overlay.Colormap)
	if err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg, colormap: cm, logger: logger}, nil
}

// Render overlays the atlas image on the background image and writes
// <subjectID>label-<atlasLabel>_overlay.png into outputDir, which must
// already exist. It returns the path written.
func (r *Renderer) Render(subjectID, atlasLabel, atlasImagePath, backgroundImagePath, outputDir string) (string, error) {
	info, err := os.Stat(outputDir)
	if err != nil {
		return "", fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output directory %s is not a directory", outputDir)
	}

	background, err := nifti.Load(backgroundImagePath)
	if err != nil {
		return "", fmt.Errorf("loading background image: %w", err)
	}
	bgDims := background.Dims()
	r.logger.Debug().
		Str("path", backgroundImagePath).
		Ints("dims", bgDims[:]).
		Str("orientation", nifti.OrientationOf(background.Affine).Codes()).
		Msg("loaded background image")

	atlas, err := nifti.Load(atlasImagePath)
	if err != nil {
		return "", fmt.Errorf("loading atlas image: %w", err)
	}
	atlasDims := atlas.Dims()
	r.logger.Debug().
		Str("path", atlasImagePath).
		Ints("dims", atlasDims[:]).
		Msg("loaded atlas image")

	fig, err := r.Compose(atlas, background)
	if err != nil {
		return "", err
	}

	outputFile := filepath.Join(outputDir, OutputFilename(subjectID, atlasLabel))
	if err := visualization.SavePNG(fig, outputFile); err != nil {
		return "", fmt.Errorf("saving overlay: %w", err)
	}

	r.logger.Info().
		Str("subject", subjectID).
		Str("atlas", atlasLabel).
		Str("file", outputFile).
		Msg("overlay written")

	return outputFile, nil
}

// Compose renders the two-panel figure for an atlas and background pair.
// The background is brought to RAS order and the atlas resampled onto it.
func (r *Renderer) Compose(atlas, background *models.Volume) (*image.NRGBA, error) {
	background = nifti.Reorient(background)
	atlas, err := nifti.Resample(atlas, background)
	if err != nil {
		return nil, fmt.Errorf("resampling atlas onto background: %w", err)
	}

	ov := r.cfg.Overlay
	width := int(math.Round(ov.FigureWidth * float64(ov.DPI)))
	height := int(math.Round(ov.FigureHeight * float64(ov.DPI)))
	if width/ov.Cuts < 1 || height/len(PanelAxes) < 1 {
		return nil, fmt.Errorf("figure of %dx%d pixels is too small for %d cuts", width, height, ov.Cuts)
	}

	fig := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(fig, fig.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	bgLo, bgHi := visualization.IntensityWindow(background.Data, ov.LowPercentile, ov.HighPercentile)
	labelLo, labelHi, _ := visualization.LabelRange(atlas.Data)

	bgView := visualization.NewViewer(background)
	atlasView := visualization.NewViewer(atlas)

	panelHeight := height / len(PanelAxes)
	for p, axis := range PanelAxes {
		panel := image.Rect(0, p*panelHeight, width, (p+1)*panelHeight)

		first, last, ok, err := atlasView.Extent(axis)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Warn().Str("axis", axis).Msg("atlas has no labelled voxels")
			idx, err := visualization.AxisIndex(axis)
			if err != nil {
				return nil, err
			}
			first, last = 0, background.Dims()[idx]-1
		}

		cellWidth := width / ov.Cuts
		for c, pos := range visualization.CutPositions(first, last, ov.Cuts) {
			cell := image.Rect(panel.Min.X+c*cellWidth, panel.Min.Y, panel.Min.X+(c+1)*cellWidth, panel.Max.Y)

			bgPlane, err := bgView.ExtractSlice(axis, pos)
			if err != nil {
				return nil, err
			}
			atlasPlane, err := atlasView.ExtractSlice(axis, pos)
			if err != nil {
				return nil, err
			}

			cut := r.renderCut(bgPlane, atlasPlane, bgLo, bgHi, labelLo, labelHi)
			xdraw.NearestNeighbor.Scale(fig, fitRect(cell, bgPlane), cut, cut.Bounds(), xdraw.Src, nil)

			coord, err := bgView.WorldCoordinate(axis, pos)
			if err != nil {
				return nil, err
			}
			drawText(fig, fmt.Sprintf("%s=%d", axis, int(math.Round(coord))),
				cell.Min.X+4, cell.Max.Y-4)
		}

		mid := panel.Min.Y + panelHeight/2
		drawText(fig, "L", panel.Min.X+4, mid)
		drawText(fig, "R", panel.Max.X-12, mid)
	}

	return fig, nil
}

// renderCut blends one atlas plane over its background plane
func (r *Renderer) renderCut(bg, atlas *visualization.Plane, bgLo, bgHi, labelLo, labelHi float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, bg.Width, bg.Height))
	alpha := r.cfg.Overlay.Alpha

	for y := 0; y < bg.Height; y++ {
		for x := 0; x < bg.Width; x++ {
			g := visualization.Gray(bg.At(x, y), bgLo, bgHi)
			px := color.NRGBA{R: g, G: g, B: g, A: 255}

			if label := atlas.At(x, y); label > 0 {
				t := 0.0
				if labelHi > labelLo {
					t = (label - labelLo) / (labelHi - labelLo)
				}
				px = visualization.Blend(px, r.colormap(t), alpha)
			}
			img.SetNRGBA(x, y, px)
		}
	}
	return img
}

// fitRect returns the largest rectangle centred in cell that keeps the
// plane's physical aspect ratio
func fitRect(cell image.Rectangle, plane *visualization.Plane) image.Rectangle {
	physW := float64(plane.Width) * plane.PixelWidth
	physH := float64(plane.Height) * plane.PixelHeight
	scale := math.Min(float64(cell.Dx())/physW, float64(cell.Dy())/physH)

	w := int(math.Max(1, math.Floor(physW*scale)))
	h := int(math.Max(1, math.Floor(physH*scale)))
	x0 := cell.Min.X + (cell.Dx()-w)/2
	y0 := cell.Min.Y + (cell.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func drawText(dst *image.NRGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
