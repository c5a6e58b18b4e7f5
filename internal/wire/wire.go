// Package wire implements the explicit little-endian task/response payload
// serialization used by the persistent task queue. Payloads are opaque
// fixed-size byte blobs to the queue; this package is the only place that
// knows how to turn them into typed descriptors and back.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Tag identifies the shape of a task payload: which fields follow the tag
// byte, and in what order.
type Tag byte

const (
	TagBlockCoord Tag = iota + 1
	TagSegmentIndex
	TagVectorOp
	TagMixedOp
	TagMatrixOp
	TagGeneration
)

// OpKind identifies the BLAS routine and element type a primary task
// carries. Distinct element types get distinct tags (e.g. OpSGEMM vs
// OpDGEMM) rather than a generic op code plus a width flag, matching the
// source's SGEMM/DGEMM split.
type OpKind byte

const (
	OpSDOT OpKind = iota + 1
	OpDDOT
	OpSAXPY
	OpDAXPY
	OpSCOPY
	OpDCOPY
	OpSSWAP
	OpDSWAP
	OpSSCAL
	OpDSCAL
	OpSNRM2
	OpDNRM2
	OpSASUM
	OpDASUM
	OpISAMAX
	OpIDAMAX
	OpSGEMV
	OpDGEMV
	OpSGBMV
	OpDGBMV
	OpSGER
	OpDGER
	OpSTRSV
	OpDTRSV
	OpSTBSV
	OpDTBSV
	OpSGEMM
	OpDGEMM
	OpSSYRK
	OpDSYRK
	OpSSYR2K
	OpDSYR2K
	OpSRMGEN
	OpDRMGEN
	OpSRVGEN
	OpDRVGEN
)

// IsDouble reports whether op operates on float64 operands. The enum
// deliberately alternates S/D pairs (OpSDOT, OpDDOT, OpSAXPY, ...) so the
// element width is the parity of the value, matching the source's
// SGEMM/DGEMM naming split without a second lookup table.
func (o OpKind) IsDouble() bool { return o%2 == 0 }

// Transpose, Uplo and Diag mirror the corresponding BLAS enums.
type Transpose byte

const (
	NoTrans Transpose = iota
	Trans
)

type Uplo byte

const (
	Upper Uplo = iota
	Lower
)

type Diag byte

const (
	NonUnit Diag = iota
	Unit
)

// Payload is implemented by every task payload shape. Tag reports which
// shape encode() wrote so Decode can pick the right reader.
type Payload interface {
	Tag() Tag
	encode(buf *bytes.Buffer)
}

// BlockCoord addresses one output block of a matrix-output subtask.
type BlockCoord struct {
	BlockRow int64
	BlockCol int64
}

func (BlockCoord) Tag() Tag { return TagBlockCoord }
func (p BlockCoord) encode(buf *bytes.Buffer) {
	writeInt64(buf, p.BlockRow)
	writeInt64(buf, p.BlockCol)
}

// SegmentIndex addresses one output segment of a vector-output subtask.
type SegmentIndex struct {
	Segment int64
}

func (SegmentIndex) Tag() Tag { return TagSegmentIndex }
func (p SegmentIndex) encode(buf *bytes.Buffer) {
	writeInt64(buf, p.Segment)
}

// VectorOp is the primary-task descriptor for level-1 operations
// (axpy/copy/swap/scal/dot/nrm2/asum/iamax).
type VectorOp struct {
	Op             OpKind
	SubtaskQueueID int64
	Alpha          float64
	XID            int64
	YID            int64
}

func (VectorOp) Tag() Tag { return TagVectorOp }
func (p VectorOp) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(p.Op))
	writeInt64(buf, p.SubtaskQueueID)
	writeFloat64(buf, p.Alpha)
	writeInt64(buf, p.XID)
	writeInt64(buf, p.YID)
}

// MixedOp is the primary-task descriptor for level-2 operations that mix a
// matrix operand with vector operands (gemv/gbmv/ger/trsv/tbsv). HelperID
// addresses trsv/tbsv's fixed right-hand-side copy (spec.md §4.3's "helper
// vector"); it is unused (zero) by gemv/gbmv/ger.
type MixedOp struct {
	Op             OpKind
	SubtaskQueueID int64
	KL             int64
	KU             int64
	Uplo           Uplo
	Diag           Diag
	AID            int64
	TransA         Transpose
	Alpha          float64
	XID            int64
	Beta           float64
	YID            int64
	HelperID       int64
}

func (MixedOp) Tag() Tag { return TagMixedOp }
func (p MixedOp) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(p.Op))
	writeInt64(buf, p.SubtaskQueueID)
	writeInt64(buf, p.KL)
	writeInt64(buf, p.KU)
	buf.WriteByte(byte(p.Uplo))
	buf.WriteByte(byte(p.Diag))
	writeInt64(buf, p.AID)
	buf.WriteByte(byte(p.TransA))
	writeFloat64(buf, p.Alpha)
	writeInt64(buf, p.XID)
	writeFloat64(buf, p.Beta)
	writeInt64(buf, p.YID)
	writeInt64(buf, p.HelperID)
}

// MatrixOp is the primary-task descriptor for level-3 operations
// (gemm/syrk/syr2k).
type MatrixOp struct {
	Op             OpKind
	SubtaskQueueID int64
	AID            int64
	TransA         Transpose
	Alpha          float64
	BID            int64
	TransB         Transpose
	Beta           float64
	CID            int64
}

func (MatrixOp) Tag() Tag { return TagMatrixOp }
func (p MatrixOp) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(p.Op))
	writeInt64(buf, p.SubtaskQueueID)
	writeInt64(buf, p.AID)
	buf.WriteByte(byte(p.TransA))
	writeFloat64(buf, p.Alpha)
	writeInt64(buf, p.BID)
	buf.WriteByte(byte(p.TransB))
	writeFloat64(buf, p.Beta)
	writeInt64(buf, p.CID)
}

// Generation is the primary-task descriptor for the rmgen/rvgen kernels.
type Generation struct {
	Op             OpKind
	SubtaskQueueID int64
	StructureID    int64
	Alpha          float64
}

func (Generation) Tag() Tag { return TagGeneration }
func (p Generation) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(p.Op))
	writeInt64(buf, p.SubtaskQueueID)
	writeInt64(buf, p.StructureID)
	writeFloat64(buf, p.Alpha)
}

// Encode serializes p as tag byte + fields, in the field order declared by
// its struct, little-endian throughout.
func Encode(p Payload) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Tag()))
	p.encode(&buf)
	return buf.Bytes()
}

// Decode parses a byte slice produced by Encode. It returns corrupt-payload
// errors (spec §7, §8) rather than panicking on truncated input.
func Decode(b []byte) (Payload, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("wire: corrupt-payload: empty payload")
	}
	r := bytes.NewReader(b[1:])
	switch Tag(b[0]) {
	case TagBlockCoord:
		var p BlockCoord
		if err := readInt64(r, &p.BlockRow); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.BlockCol); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case TagSegmentIndex:
		var p SegmentIndex
		if err := readInt64(r, &p.Segment); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case TagVectorOp:
		var p VectorOp
		op, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Op = OpKind(op)
		if err := readInt64(r, &p.SubtaskQueueID); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat64(r, &p.Alpha); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.XID); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.YID); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case TagMixedOp:
		var p MixedOp
		op, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Op = OpKind(op)
		if err := readInt64(r, &p.SubtaskQueueID); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.KL); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.KU); err != nil {
			return nil, corrupt(err)
		}
		uplo, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Uplo = Uplo(uplo)
		diag, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Diag = Diag(diag)
		if err := readInt64(r, &p.AID); err != nil {
			return nil, corrupt(err)
		}
		trans, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.TransA = Transpose(trans)
		if err := readFloat64(r, &p.Alpha); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.XID); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat64(r, &p.Beta); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.YID); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.HelperID); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case TagMatrixOp:
		var p MatrixOp
		op, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Op = OpKind(op)
		if err := readInt64(r, &p.SubtaskQueueID); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.AID); err != nil {
			return nil, corrupt(err)
		}
		transA, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.TransA = Transpose(transA)
		if err := readFloat64(r, &p.Alpha); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.BID); err != nil {
			return nil, corrupt(err)
		}
		transB, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.TransB = Transpose(transB)
		if err := readFloat64(r, &p.Beta); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.CID); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case TagGeneration:
		var p Generation
		op, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		p.Op = OpKind(op)
		if err := readInt64(r, &p.SubtaskQueueID); err != nil {
			return nil, corrupt(err)
		}
		if err := readInt64(r, &p.StructureID); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat64(r, &p.Alpha); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("wire: corrupt-payload: unknown tag %d", b[0])
	}
}

// RespTag identifies the shape of a response payload.
type RespTag byte

const (
	RespNone RespTag = iota
	RespF32
	RespF64
	RespIndexF32
	RespIndexF64
	RespPairF32
	RespPairF64
)

// Response is implemented by every response payload shape.
type Response interface {
	RespTag() RespTag
	encode(buf *bytes.Buffer)
}

type NoneResponse struct{}

func (NoneResponse) RespTag() RespTag          { return RespNone }
func (NoneResponse) encode(buf *bytes.Buffer) {}

type F32Response float32

func (F32Response) RespTag() RespTag { return RespF32 }
func (r F32Response) encode(buf *bytes.Buffer) {
	writeFloat32(buf, float32(r))
}

type F64Response float64

func (F64Response) RespTag() RespTag { return RespF64 }
func (r F64Response) encode(buf *bytes.Buffer) {
	writeFloat64(buf, float64(r))
}

// IndexF32Response is iamax's response for float32 operands: the winning
// index and its value.
type IndexF32Response struct {
	Index int64
	Value float32
}

func (IndexF32Response) RespTag() RespTag { return RespIndexF32 }
func (r IndexF32Response) encode(buf *bytes.Buffer) {
	writeInt64(buf, r.Index)
	writeFloat32(buf, r.Value)
}

type IndexF64Response struct {
	Index int64
	Value float64
}

func (IndexF64Response) RespTag() RespTag { return RespIndexF64 }
func (r IndexF64Response) encode(buf *bytes.Buffer) {
	writeInt64(buf, r.Index)
	writeFloat64(buf, r.Value)
}

// PairF32Response carries trsv/tbsv's per-primary (residual, norm) partials.
type PairF32Response struct {
	A float32
	B float32
}

func (PairF32Response) RespTag() RespTag { return RespPairF32 }
func (r PairF32Response) encode(buf *bytes.Buffer) {
	writeFloat32(buf, r.A)
	writeFloat32(buf, r.B)
}

type PairF64Response struct {
	A float64
	B float64
}

func (PairF64Response) RespTag() RespTag { return RespPairF64 }
func (r PairF64Response) encode(buf *bytes.Buffer) {
	writeFloat64(buf, r.A)
	writeFloat64(buf, r.B)
}

// EncodeResponse serializes r as resp-tag byte + fields.
func EncodeResponse(r Response) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(r.RespTag()))
	r.encode(&buf)
	return buf.Bytes()
}

// DecodeResponse parses a byte slice produced by EncodeResponse. A nil or
// empty slice decodes as NoneResponse, matching an unset response column.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return NoneResponse{}, nil
	}
	r := bytes.NewReader(b[1:])
	switch RespTag(b[0]) {
	case RespNone:
		return NoneResponse{}, nil
	case RespF32:
		var v float32
		if err := readFloat32(r, &v); err != nil {
			return nil, corrupt(err)
		}
		return F32Response(v), nil
	case RespF64:
		var v float64
		if err := readFloat64(r, &v); err != nil {
			return nil, corrupt(err)
		}
		return F64Response(v), nil
	case RespIndexF32:
		var p IndexF32Response
		if err := readInt64(r, &p.Index); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat32(r, &p.Value); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case RespIndexF64:
		var p IndexF64Response
		if err := readInt64(r, &p.Index); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat64(r, &p.Value); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case RespPairF32:
		var p PairF32Response
		if err := readFloat32(r, &p.A); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat32(r, &p.B); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	case RespPairF64:
		var p PairF64Response
		if err := readFloat64(r, &p.A); err != nil {
			return nil, corrupt(err)
		}
		if err := readFloat64(r, &p.B); err != nil {
			return nil, corrupt(err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("wire: corrupt-payload: unknown response tag %d", b[0])
	}
}

func corrupt(err error) error {
	return fmt.Errorf("wire: corrupt-payload: %w", err)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader, dst *int64) error {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*dst = int64(binary.LittleEndian.Uint64(b[:]))
	return nil
}

func readFloat64(r *bytes.Reader, dst *float64) error {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*dst = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
	return nil
}

func readFloat32(r *bytes.Reader, dst *float32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*dst = math.Float32frombits(binary.LittleEndian.Uint32(b[:]))
	return nil
}
