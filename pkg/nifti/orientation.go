package nifti

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"dwiqc/internal/models"
)

// Orientation describes how a voxel grid relates to RAS world axes.
// Axis[w] is the voxel axis that runs along world axis w (0=R, 1=A, 2=S)
// and Flip[w] is true when that voxel axis runs the opposite way.
type Orientation struct {
	Axis [3]int
	Flip [3]bool
}

// IsCanonical reports whether the grid is already RAS ordered
func (o Orientation) IsCanonical() bool {
	return o.Axis == [3]int{0, 1, 2} && o.Flip == [3]bool{}
}

// Codes returns the axis codes (e.g. "RAS", "LPS") of voxel axes i, j, k
func (o Orientation) Codes() string {
	pos := [3]byte{'R', 'A', 'S'}
	neg := [3]byte{'L', 'P', 'I'}
	var out [3]byte
	for w := 0; w < 3; w++ {
		if o.Flip[w] {
			out[o.Axis[w]] = neg[w]
		} else {
			out[o.Axis[w]] = pos[w]
		}
	}
	return string(out[:])
}

// AffineDense returns the affine as a 4x4 gonum matrix
func AffineDense(aff [16]float64) *mat.Dense {
	data := make([]float64, 16)
	copy(data, aff[:])
	return mat.NewDense(4, 4, data)
}

func affineArray(m mat.Matrix) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

// OrientationOf picks, for every world axis, the voxel axis whose
// direction is closest to it
func OrientationOf(aff [16]float64) Orientation {
	// Normalised direction cosines, rows = world axes, columns = voxel axes
	var cos [3][3]float64
	for v := 0; v < 3; v++ {
		norm := math.Sqrt(aff[v]*aff[v] + aff[4+v]*aff[4+v] + aff[8+v]*aff[8+v])
		if norm == 0 {
			norm = 1
		}
		for w := 0; w < 3; w++ {
			cos[w][v] = aff[w*4+v] / norm
		}
	}

	var o Orientation
	usedWorld := [3]bool{}
	usedVoxel := [3]bool{}
	for n := 0; n < 3; n++ {
		bestW, bestV, best := -1, -1, -1.0
		for w := 0; w < 3; w++ {
			if usedWorld[w] {
				continue
			}
			for v := 0; v < 3; v++ {
				if usedVoxel[v] {
					continue
				}
				if a := math.Abs(cos[w][v]); a > best {
					bestW, bestV, best = w, v, a
				}
			}
		}
		usedWorld[bestW], usedVoxel[bestV] = true, true
		o.Axis[bestW] = bestV
		o.Flip[bestW] = cos[bestW][bestV] < 0
	}
	return o
}

// Reorient permutes and flips the voxel grid so that i, j and k run
// towards Right, Anterior and Superior. Voxel values are not resampled.
func Reorient(vol *models.Volume) *models.Volume {
	o := OrientationOf(vol.Affine)
	if o.IsCanonical() {
		return vol
	}

	oldDims := vol.Dims()
	var newDims [3]int
	for w := 0; w < 3; w++ {
		newDims[w] = oldDims[o.Axis[w]]
	}

	out := models.NewVolume(newDims[0], newDims[1], newDims[2])
	oldSize := [3]float64{vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z}
	out.VoxelSize.X = oldSize[o.Axis[0]]
	out.VoxelSize.Y = oldSize[o.Axis[1]]
	out.VoxelSize.Z = oldSize[o.Axis[2]]

	var src [3]int
	for k := 0; k < newDims[2]; k++ {
		for j := 0; j < newDims[1]; j++ {
			for i := 0; i < newDims[0]; i++ {
				dst := [3]int{i, j, k}
				for w := 0; w < 3; w++ {
					if o.Flip[w] {
						src[o.Axis[w]] = newDims[w] - 1 - dst[w]
					} else {
						src[o.Axis[w]] = dst[w]
					}
				}
				out.Set(i, j, k, vol.At(src[0], src[1], src[2]))
			}
		}
	}

	// old voxel = P * new voxel + t
	transform := mat.NewDense(4, 4, nil)
	transform.Set(3, 3, 1)
	for w := 0; w < 3; w++ {
		if o.Flip[w] {
			transform.Set(o.Axis[w], w, -1)
			transform.Set(o.Axis[w], 3, float64(newDims[w]-1))
		} else {
			transform.Set(o.Axis[w], w, 1)
		}
	}
	var aff mat.Dense
	aff.Mul(AffineDense(vol.Affine), transform)
	out.Affine = affineArray(&aff)

	return out
}

// Resample maps src onto the voxel grid of target with nearest-neighbour
// lookup through both affines. Target voxels that fall outside src are 0.
func Resample(src, target *models.Volume) (*models.Volume, error) {
	var inv mat.Dense
	if err := inv.Inverse(AffineDense(src.Affine)); err != nil {
		return nil, fmt.Errorf("inverting source affine: %w", err)
	}

	// target voxel -> source voxel
	var vox mat.Dense
	vox.Mul(&inv, AffineDense(target.Affine))
	m := affineArray(&vox)

	out := models.NewVolume(target.Width, target.Height, target.Depth)
	out.VoxelSize = target.VoxelSize
	out.Affine = target.Affine

	for k := 0; k < target.Depth; k++ {
		for j := 0; j < target.Height; j++ {
			for i := 0; i < target.Width; i++ {
				x, y, z := float64(i), float64(j), float64(k)
				si := int(math.Round(m[0]*x + m[1]*y + m[2]*z + m[3]))
				sj := int(math.Round(m[4]*x + m[5]*y + m[6]*z + m[7]))
				sk := int(math.Round(m[8]*x + m[9]*y + m[10]*z + m[11]))
				out.Set(i, j, k, src.At(si, sj, sk))
			}
		}
	}
	return out, nil
}
