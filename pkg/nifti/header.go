package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// headerSize is the fixed size of a NIfTI-1 header
const headerSize = 348

// Datatype codes from the NIfTI-1 standard
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
	DTInt64   int16 = 1024
	DTUint64  int16 = 1280
)

var (
	// ErrNotNifti is returned when a file lacks a NIfTI-1 single-file header
	ErrNotNifti = errors.New("nifti: not a NIfTI-1 single-file image")

	// ErrUnsupportedDatatype is returned for complex, RGB and other non-scalar voxel types
	ErrUnsupportedDatatype = errors.New("nifti: unsupported datatype")
)

// Header mirrors the on-disk NIfTI-1 header layout
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// readHeader decodes the header and reports the byte order it was stored in
func readHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, ErrNotNifti
	}

	hdr := &Header{}
	if err := binary.Read(bytes.NewReader(raw), order, hdr); err != nil {
		return nil, nil, fmt.Errorf("decoding header: %w", err)
	}

	if !bytes.Equal(hdr.Magic[:3], []byte("n+1")) {
		return nil, nil, fmt.Errorf("%w: magic %q", ErrNotNifti, hdr.Magic[:3])
	}

	return hdr, order, nil
}

// bytesPerVoxel returns the storage size of a scalar datatype
func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTInt64, DTUint64, DTFloat64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: code %d", ErrUnsupportedDatatype, datatype)
	}
}

// decodeVoxel converts one stored voxel to float64
func decodeVoxel(b []byte, datatype int16, order binary.ByteOrder) float64 {
	switch datatype {
	case DTUint8:
		return float64(b[0])
	case DTInt8:
		return float64(int8(b[0]))
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTUint16:
		return float64(order.Uint16(b))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTUint32:
		return float64(order.Uint32(b))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case DTInt64:
		return float64(int64(order.Uint64(b)))
	case DTUint64:
		return float64(order.Uint64(b))
	case DTFloat64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// affine builds the voxel-to-world matrix: sform if present, then qform,
// then plain pixdim scaling
func (h *Header) affine() [16]float64 {
	if h.SformCode > 0 {
		return [16]float64{
			float64(h.SrowX[0]), float64(h.SrowX[1]), float64(h.SrowX[2]), float64(h.SrowX[3]),
			float64(h.SrowY[0]), float64(h.SrowY[1]), float64(h.SrowY[2]), float64(h.SrowY[3]),
			float64(h.SrowZ[0]), float64(h.SrowZ[1]), float64(h.SrowZ[2]), float64(h.SrowZ[3]),
			0, 0, 0, 1,
		}
	}

	dx, dy, dz := h.voxelSize()

	if h.QformCode > 0 {
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		a := 1 - (b*b + c*c + d*d)
		if a < 1e-7 {
			// 180 degree rotation; renormalise b, c, d
			n := 1 / math.Sqrt(b*b+c*c+d*d)
			b, c, d = b*n, c*n, d*n
			a = 0
		} else {
			a = math.Sqrt(a)
		}

		qfac := 1.0
		if h.Pixdim[0] < 0 {
			qfac = -1
		}
		dz *= qfac

		return [16]float64{
			(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.QoffsetX),
			2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.QoffsetY),
			2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - c*c - b*b) * dz, float64(h.QoffsetZ),
			0, 0, 0, 1,
		}
	}

	return [16]float64{
		dx, 0, 0, 0,
		0, dy, 0, 0,
		0, 0, dz, 0,
		0, 0, 0, 1,
	}
}

// voxelSize returns pixdim[1..3], treating zero or missing spacing as 1mm
func (h *Header) voxelSize() (dx, dy, dz float64) {
	size := func(v float32) float64 {
		if v == 0 || math.IsNaN(float64(v)) {
			return 1
		}
		return math.Abs(float64(v))
	}
	return size(h.Pixdim[1]), size(h.Pixdim[2]), size(h.Pixdim[3])
}
