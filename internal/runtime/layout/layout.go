// Package layout computes the in-memory layout the host sees for IR types:
// sizes, alignments and struct field offsets for a given pointer width.
package layout

import (
	"errors"
	"fmt"

	"github.com/llir/llvm/ir/types"
)

// MaxIntAlign caps the alignment of wide integers, matching the i64 ABI
// alignment of the supported 32- and 64-bit targets. DataLayout pins the
// same cap in emitted modules.
const MaxIntAlign = 8

var (
	// ErrUnsized is returned for opaque structs and types without storage.
	ErrUnsized = errors.New("type has no size")
	// ErrPointerSize is returned for unsupported pointer widths.
	ErrPointerSize = errors.New("unsupported pointer size")
)

// Layout is a target data layout.
type Layout struct {
	pointerSize uint64
}

// New returns the layout of a target whose pointers are pointerSize bytes.
func New(pointerSize uint64) (*Layout, error) {
	if pointerSize != 4 && pointerSize != 8 {
		return nil, fmt.Errorf("%w: %d", ErrPointerSize, pointerSize)
	}
	return &Layout{pointerSize: pointerSize}, nil
}

// PointerSize returns the pointer width in bytes.
func (l *Layout) PointerSize() uint64 {
	return l.pointerSize
}

// DataLayout returns the LLVM datalayout string describing this layout:
// little-endian, pointers of the target width, and integers from i64 up to
// i256 aligned to MaxIntAlign bytes.
func (l *Layout) DataLayout() string {
	bits := l.pointerSize * 8
	return fmt.Sprintf("e-p:%d:%d-i64:64-i128:64-i256:64", bits, bits)
}

// StructLayout is the placement of a struct's fields.
type StructLayout struct {
	Size    uint64
	Align   uint64
	Offsets []uint64
	Sizes   []uint64
}

// IsSized reports whether t has a size this package can compute: it is an
// integer, pointer, array or non-opaque struct and everything it contains by
// value is sized.
func IsSized(t types.Type) bool {
	switch t := t.(type) {
	case *types.IntType, *types.PointerType:
		return true
	case *types.ArrayType:
		return IsSized(t.ElemType)
	case *types.StructType:
		if t.Opaque {
			return false
		}
		for _, f := range t.Fields {
			if !IsSized(f) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SizeOf returns the allocation size of t in bytes, including tail padding.
func (l *Layout) SizeOf(t types.Type) (uint64, error) {
	size, _, err := l.sizeAlign(t)
	return size, err
}

// AlignOf returns the ABI alignment of t in bytes.
func (l *Layout) AlignOf(t types.Type) (uint64, error) {
	_, align, err := l.sizeAlign(t)
	return align, err
}

// Struct returns the field placement of st.
func (l *Layout) Struct(st *types.StructType) (*StructLayout, error) {
	if st.Opaque {
		return nil, fmt.Errorf("%w: opaque struct %s", ErrUnsized, st.Name())
	}
	sl := &StructLayout{
		Align:   1,
		Offsets: make([]uint64, len(st.Fields)),
		Sizes:   make([]uint64, len(st.Fields)),
	}
	var offset uint64
	for i, f := range st.Fields {
		size, align, err := l.sizeAlign(f)
		if err != nil {
			return nil, fmt.Errorf("field %d of %s: %w", i, st.Name(), err)
		}
		if st.Packed {
			align = 1
		}
		offset = alignTo(offset, align)
		sl.Offsets[i] = offset
		sl.Sizes[i] = size
		offset += size
		if align > sl.Align {
			sl.Align = align
		}
	}
	sl.Size = alignTo(offset, sl.Align)
	return sl, nil
}

func (l *Layout) sizeAlign(t types.Type) (uint64, uint64, error) {
	switch t := t.(type) {
	case *types.PointerType:
		return l.pointerSize, l.pointerSize, nil
	case *types.IntType:
		store := (t.BitSize + 7) / 8
		align := nextPow2(store)
		if align > MaxIntAlign {
			align = MaxIntAlign
		}
		return alignTo(store, align), align, nil
	case *types.ArrayType:
		size, align, err := l.sizeAlign(t.ElemType)
		if err != nil {
			return 0, 0, err
		}
		return size * t.Len, align, nil
	case *types.StructType:
		sl, err := l.Struct(t)
		if err != nil {
			return 0, 0, err
		}
		return sl.Size, sl.Align, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsized, t)
	}
}

func alignTo(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func nextPow2(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
