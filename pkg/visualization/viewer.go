package visualization

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dwiqc/internal/models"
)

// Plane is a 2D cut through a volume in display orientation:
// row 0 is the top of the picture
type Plane struct {
	Data   []float64
	Width  int
	Height int

	// PixelWidth and PixelHeight are the physical pixel spacing in mm
	PixelWidth  float64
	PixelHeight float64
}

// At returns the value at column x, row y
func (p *Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Viewer extracts display planes from a RAS-ordered volume
type Viewer struct {
	// vol holds the volume being displayed
	vol *models.Volume
}

// NewViewer creates a new viewer. The volume is expected in RAS voxel
// order (see nifti.Reorient).
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// Volume returns the displayed volume
func (v *Viewer) Volume() *models.Volume {
	return v.vol
}

// AxisIndex maps a display axis name to its voxel axis
func AxisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice extracts a 2D plane at a voxel position along the given axis.
// Sagittal (x) planes put anterior to the right, coronal (y) and axial (z)
// planes put the subject's right to the right; superior, or anterior for
// axial planes, is up.
func (v *Viewer) ExtractSlice(axis string, position int) (*Plane, error) {
	idx, err := AxisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if dims := v.vol.Dims(); position >= dims[idx] {
		return nil, fmt.Errorf("position %d exceeds size %d along %s", position, dims[idx], axis)
	}

	vol := v.vol
	var p Plane

	switch idx {
	case 0:
		// Extract slice along YZ plane
		p = Plane{Width: vol.Height, Height: vol.Depth,
			PixelWidth: vol.VoxelSize.Y, PixelHeight: vol.VoxelSize.Z}
		p.Data = make([]float64, p.Width*p.Height)
		for z := 0; z < vol.Depth; z++ {
			row := vol.Depth - 1 - z
			for y := 0; y < vol.Height; y++ {
				p.Data[row*p.Width+y] = vol.At(position, y, z)
			}
		}

	case 1:
		// Extract slice along XZ plane
		p = Plane{Width: vol.Width, Height: vol.Depth,
			PixelWidth: vol.VoxelSize.X, PixelHeight: vol.VoxelSize.Z}
		p.Data = make([]float64, p.Width*p.Height)
		for z := 0; z < vol.Depth; z++ {
			row := vol.Depth - 1 - z
			for x := 0; x < vol.Width; x++ {
				p.Data[row*p.Width+x] = vol.At(x, position, z)
			}
		}

	case 2:
		// Extract slice along XY plane
		p = Plane{Width: vol.Width, Height: vol.Height,
			PixelWidth: vol.VoxelSize.X, PixelHeight: vol.VoxelSize.Y}
		p.Data = make([]float64, p.Width*p.Height)
		for y := 0; y < vol.Height; y++ {
			row := vol.Height - 1 - y
			for x := 0; x < vol.Width; x++ {
				p.Data[row*p.Width+x] = vol.At(x, y, position)
			}
		}
	}

	return &p, nil
}

// Extent returns the first and last positions along axis that hold any
// non-zero voxel. ok is false for an all-zero volume.
func (v *Viewer) Extent(axis string) (first, last int, ok bool, err error) {
	idx, err := AxisIndex(axis)
	if err != nil {
		return 0, 0, false, err
	}

	first, last = math.MaxInt, -1
	vol := v.vol
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.Data[vol.Index(x, y, z)] == 0 {
					continue
				}
				pos := [3]int{x, y, z}[idx]
				if pos < first {
					first = pos
				}
				if pos > last {
					last = pos
				}
			}
		}
	}

	if last < 0 {
		return 0, 0, false, nil
	}
	return first, last, true, nil
}

// CutPositions spreads n cuts evenly inside [first, last], leaving out
// the two ends
func CutPositions(first, last, n int) []int {
	positions := make([]int, n)
	span := float64(last - first)
	for c := 0; c < n; c++ {
		positions[c] = first + int(math.Round(span*float64(c+1)/float64(n+1)))
	}
	return positions
}

// WorldCoordinate returns the world coordinate in mm of a cut position,
// measured at the centre of the plane
func (v *Viewer) WorldCoordinate(axis string, position int) (float64, error) {
	idx, err := AxisIndex(axis)
	if err != nil {
		return 0, err
	}

	voxel := [3]float64{
		float64(v.vol.Width-1) / 2,
		float64(v.vol.Height-1) / 2,
		float64(v.vol.Depth-1) / 2,
	}
	voxel[idx] = float64(position)

	row := v.vol.Affine[idx*4 : idx*4+4]
	return row[0]*voxel[0] + row[1]*voxel[1] + row[2]*voxel[2] + row[3], nil
}

// IntensityWindow returns the lowQ and highQ quantiles of the non-zero
// values in data. An all-zero input yields [0, 1].
func IntensityWindow(data []float64, lowQ, highQ float64) (lo, hi float64) {
	values := nonZero(data)
	if len(values) == 0 {
		return 0, 1
	}
	sort.Float64s(values)

	lo = stat.Quantile(lowQ, stat.Empirical, values, nil)
	hi = stat.Quantile(highQ, stat.Empirical, values, nil)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// LabelRange returns the smallest and largest positive label values.
// ok is false when no voxel is labelled.
func LabelRange(data []float64) (lo, hi float64, ok bool) {
	var labels []float64
	for _, v := range data {
		if v > 0 {
			labels = append(labels, v)
		}
	}
	if len(labels) == 0 {
		return 0, 0, false
	}
	return floats.Min(labels), floats.Max(labels), true
}

func nonZero(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 && !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// SavePNG saves an image as PNG. On failure no partial file is left at
// filename.
func SavePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		os.Remove(filename)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(filename)
		return err
	}
	return nil
}
