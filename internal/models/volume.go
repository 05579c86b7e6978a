package models

// Volume represents a 3D scalar or label image loaded from disk
type Volume struct {
	// Data is the voxel data as a 1D array with x varying fastest,
	// then y, then z
	Data []float64

	// Width, Height, Depth are the voxel counts along i, j and k
	Width  int
	Height int
	Depth  int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}

	// Affine maps voxel indices (i, j, k, 1) to world coordinates in mm.
	// Row-major 4x4.
	Affine [16]float64
}

// NewVolume allocates a zero-filled volume with an identity affine
// and 1mm isotropic voxels
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	v.Affine = [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	return v
}

// Index returns the flat index of voxel (i, j, k)
func (v *Volume) Index(i, j, k int) int {
	return k*v.Width*v.Height + j*v.Width + i
}

// At returns the value at voxel (i, j, k), or 0 outside the volume
func (v *Volume) At(i, j, k int) float64 {
	if i < 0 || j < 0 || k < 0 || i >= v.Width || j >= v.Height || k >= v.Depth {
		return 0
	}
	return v.Data[v.Index(i, j, k)]
}

// Set writes a value at voxel (i, j, k)
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.Index(i, j, k)] = value
}

// Dims returns the size along each voxel axis
func (v *Volume) Dims() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}
