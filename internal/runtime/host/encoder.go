// Package host implements the host half of the runtime ABI: the byte images
// of RuntimeData and of the runtime struct that compiled code reads.
package host

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/internal/runtime/memory"
	"github.com/evmjit/evmjit/types"
)

var (
	// ErrBufferSize is returned when a byte image has the wrong length.
	ErrBufferSize = errors.New("buffer size does not match the abi")
	// ErrAddressRange is returned for addresses that do not fit a target pointer.
	ErrAddressRange = errors.New("address does not fit target pointer")
	// ErrFieldSize is returned when a descriptor field cannot hold its value.
	ErrFieldSize = errors.New("field size does not match its kind")
	// ErrRegion is returned for memory regions whose size exceeds capacity.
	ErrRegion = errors.New("region length exceeds capacity")
	// ErrDescriptor is returned for descriptors that cannot describe the ABI.
	ErrDescriptor = errors.New("malformed abi descriptor")
)

const (
	wordSize  = runtime.WordBits / 8
	wordLimbs = wordSize / 8

	// maxStructSize bounds the buffers a descriptor can make us allocate.
	maxStructSize = 4096
)

// Encoder lays out host values the way compiled code expects them.
// All multi-byte values are little-endian.
type Encoder struct {
	desc *abi.Descriptor
}

// NewEncoder returns an encoder for the ABI described by desc. desc may come
// from another process, so every field count and placement is checked.
func NewEncoder(desc *abi.Descriptor) (*Encoder, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil", ErrDescriptor)
	}
	for _, c := range []struct {
		s      abi.Struct
		fields int
	}{
		{desc.Runtime, runtime.NumRuntimeFields},
		{desc.RuntimeData, runtime.NumRuntimeDataFields},
		{desc.Memory, memory.NumFields},
	} {
		if err := checkStruct(c.s, c.fields); err != nil {
			return nil, err
		}
	}
	mem := desc.Runtime.Fields[runtime.MemIndex]
	if mem.Size != desc.Memory.Size {
		return nil, fmt.Errorf("%w: inline memory is %d bytes, %s is %d",
			ErrDescriptor, mem.Size, desc.Memory.Name, desc.Memory.Size)
	}
	return &Encoder{desc: desc}, nil
}

func checkStruct(s abi.Struct, fields int) error {
	if s.Size > maxStructSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrDescriptor, s.Name, s.Size)
	}
	if len(s.Fields) != fields {
		return fmt.Errorf("%w: %s has %d fields, want %d", ErrDescriptor, s.Name, len(s.Fields), fields)
	}
	for i, f := range s.Fields {
		if f.Index != uint32(i) {
			return fmt.Errorf("%w: %s field %d has index %d", ErrDescriptor, s.Name, i, f.Index)
		}
		if f.Size > s.Size || f.Offset > s.Size-f.Size {
			return fmt.Errorf("%w: %s field %s at %d+%d overruns %d bytes",
				ErrDescriptor, s.Name, f.Name, f.Offset, f.Size, s.Size)
		}
	}
	return nil
}

// RuntimeDataSize is the byte length of an encoded RuntimeData.
func (e *Encoder) RuntimeDataSize() int { return int(e.desc.RuntimeData.Size) }

// FrameSize is the byte length of an encoded runtime struct.
func (e *Encoder) FrameSize() int { return int(e.desc.Runtime.Size) }

// EncodeRuntimeData returns the byte image of d.
func (e *Encoder) EncodeRuntimeData(d types.RuntimeData) ([]byte, error) {
	buf := make([]byte, e.desc.RuntimeData.Size)
	for _, f := range runtime.RuntimeDataFields() {
		fd := e.desc.Field(f)
		dst := buf[fd.Offset : fd.Offset+fd.Size]
		var err error
		switch f.Kind() {
		case runtime.KindSize:
			err = putUint(dst, uint64(*sizeField(&d, f)))
		case runtime.KindBytePtr:
			err = putUint(dst, *ptrField(&d, f))
		case runtime.KindWord:
			err = putWord(dst, wordField(&d, f))
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Name(), err)
		}
	}
	return buf, nil
}

// DecodeRuntimeData parses a byte image produced by EncodeRuntimeData.
func (e *Encoder) DecodeRuntimeData(buf []byte) (types.RuntimeData, error) {
	var d types.RuntimeData
	if uint64(len(buf)) != e.desc.RuntimeData.Size {
		return d, fmt.Errorf("%w: RuntimeData is %d bytes, got %d", ErrBufferSize, e.desc.RuntimeData.Size, len(buf))
	}
	for _, f := range runtime.RuntimeDataFields() {
		fd := e.desc.Field(f)
		src := buf[fd.Offset : fd.Offset+fd.Size]
		var err error
		switch f.Kind() {
		case runtime.KindSize:
			var v uint64
			v, err = getUint(src)
			*sizeField(&d, f) = int64(v)
		case runtime.KindBytePtr:
			*ptrField(&d, f), err = getUint(src)
		case runtime.KindWord:
			err = getWord(src, wordField(&d, f))
		}
		if err != nil {
			return types.RuntimeData{}, fmt.Errorf("decode %s: %w", f.Name(), err)
		}
	}
	return d, nil
}

// EncodeFrame returns the byte image of the runtime struct.
func (e *Encoder) EncodeFrame(fr types.RuntimeFrame) ([]byte, error) {
	if fr.Memory.Size > fr.Memory.Capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrRegion, fr.Memory.Size, fr.Memory.Capacity)
	}
	rt := e.desc.Runtime
	buf := make([]byte, rt.Size)
	if err := putUint(slice(buf, rt.Fields[runtime.RuntimeDataPtrIndex]), fr.Data); err != nil {
		return nil, fmt.Errorf("encode data pointer: %w", err)
	}
	if err := putUint(slice(buf, rt.Fields[runtime.EnvPtrIndex]), fr.Env); err != nil {
		return nil, fmt.Errorf("encode env pointer: %w", err)
	}
	mem := buf[e.desc.MemoryOffset():]
	values := [memory.NumFields]uint64{
		memory.DataIndex:     fr.Memory.Data,
		memory.SizeIndex:     fr.Memory.Size,
		memory.CapacityIndex: fr.Memory.Capacity,
	}
	for i, v := range values {
		if err := putUint(slice(mem, e.desc.Memory.Fields[i]), v); err != nil {
			return nil, fmt.Errorf("encode memory %s: %w", e.desc.Memory.Fields[i].Name, err)
		}
	}
	return buf, nil
}

// DecodeFrame parses a byte image produced by EncodeFrame.
func (e *Encoder) DecodeFrame(buf []byte) (types.RuntimeFrame, error) {
	var fr types.RuntimeFrame
	rt := e.desc.Runtime
	if uint64(len(buf)) != rt.Size {
		return fr, fmt.Errorf("%w: runtime struct is %d bytes, got %d", ErrBufferSize, rt.Size, len(buf))
	}
	var err error
	if fr.Data, err = getUint(slice(buf, rt.Fields[runtime.RuntimeDataPtrIndex])); err != nil {
		return types.RuntimeFrame{}, err
	}
	if fr.Env, err = getUint(slice(buf, rt.Fields[runtime.EnvPtrIndex])); err != nil {
		return types.RuntimeFrame{}, err
	}
	mem := buf[e.desc.MemoryOffset():]
	var values [memory.NumFields]uint64
	for i := range values {
		if values[i], err = getUint(slice(mem, e.desc.Memory.Fields[i])); err != nil {
			return types.RuntimeFrame{}, err
		}
	}
	fr.Memory = types.MemoryRegion{
		Data:     values[memory.DataIndex],
		Size:     values[memory.SizeIndex],
		Capacity: values[memory.CapacityIndex],
	}
	if fr.Memory.Size > fr.Memory.Capacity {
		return types.RuntimeFrame{}, fmt.Errorf("%w: %d > %d", ErrRegion, fr.Memory.Size, fr.Memory.Capacity)
	}
	return fr, nil
}

func slice(buf []byte, f abi.Field) []byte {
	return buf[f.Offset : f.Offset+f.Size]
}

func putUint(dst []byte, v uint64) error {
	switch len(dst) {
	case 4:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: %#x", ErrAddressRange, v)
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		return fmt.Errorf("%w: %d bytes", ErrFieldSize, len(dst))
	}
	return nil
}

func getUint(src []byte) (uint64, error) {
	switch len(src) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(src)), nil
	case 8:
		return binary.LittleEndian.Uint64(src), nil
	default:
		return 0, fmt.Errorf("%w: %d bytes", ErrFieldSize, len(src))
	}
}

// putWord stores w as 32 little-endian bytes, least significant limb first.
func putWord(dst []byte, w *uint256.Int) error {
	if len(dst) != wordSize {
		return fmt.Errorf("%w: word is %d bytes", ErrFieldSize, len(dst))
	}
	for i := 0; i < wordLimbs; i++ {
		binary.LittleEndian.PutUint64(dst[i*8:], w[i])
	}
	return nil
}

func getWord(src []byte, w *uint256.Int) error {
	if len(src) != wordSize {
		return fmt.Errorf("%w: word is %d bytes", ErrFieldSize, len(src))
	}
	for i := 0; i < wordLimbs; i++ {
		w[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
	return nil
}
