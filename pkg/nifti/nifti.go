// Package nifti loads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
//
// Only the first 3D volume of a file is read. Scalar voxel types are
// converted to float64 with the header's intensity scaling applied, and the
// voxel-to-world affine is taken from the sform, the qform, or pixdim, in
// that order of preference.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"dwiqc/internal/models"
)

// gzipMagic prefixes every gzip stream
var gzipMagic = []byte{0x1f, 0x8b}

// Load reads the first 3D volume of a NIfTI-1 file
func Load(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vol, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// Decode reads a volume from a plain or gzip-compressed NIfTI-1 stream
func Decode(r io.Reader) (*models.Volume, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	hdr, order, err := readHeader(src)
	if err != nil {
		return nil, err
	}

	width, height, depth, err := spatialDims(hdr)
	if err != nil {
		return nil, err
	}

	bpv, err := bytesPerVoxel(hdr.Datatype)
	if err != nil {
		return nil, err
	}

	// Skip extensions up to the start of the voxel data
	if skip := int64(hdr.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, src, skip); err != nil {
			return nil, fmt.Errorf("skipping to voxel data: %w", err)
		}
	}

	nvox := width * height * depth
	raw := make([]byte, nvox*bpv)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("reading %d voxels: %w", nvox, err)
	}

	vol := models.NewVolume(width, height, depth)
	for i := 0; i < nvox; i++ {
		vol.Data[i] = decodeVoxel(raw[i*bpv:(i+1)*bpv], hdr.Datatype, order)
	}

	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && !math.IsNaN(slope) && !(slope == 1 && inter == 0) {
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = hdr.voxelSize()
	vol.Affine = hdr.affine()

	return vol, nil
}

// spatialDims returns the first three dimensions, treating missing ones as 1
func spatialDims(hdr *Header) (int, int, int, error) {
	ndim := int(hdr.Dim[0])
	if ndim < 1 || ndim > 7 {
		return 0, 0, 0, fmt.Errorf("%w: invalid dimension count %d", ErrNotNifti, ndim)
	}

	dims := [3]int{1, 1, 1}
	for i := 0; i < 3 && i < ndim; i++ {
		dims[i] = int(hdr.Dim[i+1])
		if dims[i] < 1 {
			return 0, 0, 0, fmt.Errorf("%w: dimension %d has size %d", ErrNotNifti, i+1, dims[i])
		}
	}
	return dims[0], dims[1], dims[2], nil
}

// Write stores a volume as float32 NIfTI-1 with its affine as the sform.
// Paths ending in .gz are gzip-compressed.
func Write(path string, vol *models.Volume) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = file
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(file)
		w = gz
	}

	if err := Encode(w, vol); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			file.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return file.Close()
}

// Encode writes a little-endian float32 NIfTI-1 stream
func Encode(w io.Writer, vol *models.Volume) error {
	if len(vol.Data) != vol.Width*vol.Height*vol.Depth {
		return fmt.Errorf("volume has %d values for %dx%dx%d voxels",
			len(vol.Data), vol.Width, vol.Height, vol.Depth)
	}

	hdr := Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1},
		Datatype:  DTFloat32,
		Bitpix:    32,
		Pixdim:    [8]float32{1, float32(vol.VoxelSize.X), float32(vol.VoxelSize.Y), float32(vol.VoxelSize.Z), 1, 1, 1, 1},
		VoxOffset: headerSize + 4,
		SclSlope:  1,
		XYZTUnits: 2, // mm
		SformCode: 2,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	for c := 0; c < 4; c++ {
		hdr.SrowX[c] = float32(vol.Affine[c])
		hdr.SrowY[c] = float32(vol.Affine[4+c])
		hdr.SrowZ[c] = float32(vol.Affine[8+c])
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	// Empty extension block
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("writing extension: %w", err)
	}

	buf := make([]byte, 4)
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing voxels: %w", err)
		}
	}
	return bw.Flush()
}
