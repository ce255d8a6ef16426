// Package abi describes the runtime ABI as the host must see it, so that a
// host runtime can check it agrees with the compiler before calling into
// compiled code.
package abi

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/internal/runtime/layout"
	"github.com/evmjit/evmjit/internal/runtime/memory"
	evmtypes "github.com/evmjit/evmjit/types"
)

// Version is bumped whenever the meaning of a descriptor changes.
const Version = 1

var (
	runtimeFieldNames = []string{"data", "env", "mem"}
	memoryFieldNames  = []string{"data", "size", "capacity"}
)

// Field is the placement of one struct field.
type Field struct {
	Name   string `cbor:"1,keyasint"`
	Index  uint32 `cbor:"2,keyasint"`
	Offset uint64 `cbor:"3,keyasint"`
	Size   uint64 `cbor:"4,keyasint"`
}

// Struct is the placement of a struct and all its fields.
type Struct struct {
	Name   string  `cbor:"1,keyasint"`
	Size   uint64  `cbor:"2,keyasint"`
	Align  uint64  `cbor:"3,keyasint"`
	Fields []Field `cbor:"4,keyasint"`
}

// Descriptor is the full runtime ABI for one target.
type Descriptor struct {
	Version     uint32 `cbor:"1,keyasint"`
	PointerSize uint64 `cbor:"2,keyasint"`
	Runtime     Struct `cbor:"3,keyasint"`
	RuntimeData Struct `cbor:"4,keyasint"`
	Memory      Struct `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("abi: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Build lays out the runtime ABI structs. rt must verify as a runtime ABI
// struct; its pointee types are laid out from data and mem.
func Build(l *layout.Layout, rt, data, mem *types.StructType) (*Descriptor, error) {
	if !runtime.IsRuntimeType(rt) {
		return nil, fmt.Errorf("abi: %s is not a runtime ABI struct", rt.Name())
	}
	if !runtime.IsRuntimeDataType(data) {
		return nil, fmt.Errorf("abi: %s is not RuntimeData", data.Name())
	}
	if !memory.IsRepresentationType(mem) {
		return nil, fmt.Errorf("abi: %s is not a memory representation", mem.Name())
	}
	rtS, err := describe(l, rt, runtimeFieldNames)
	if err != nil {
		return nil, err
	}
	dataNames := make([]string, runtime.NumRuntimeDataFields)
	for _, f := range runtime.RuntimeDataFields() {
		dataNames[f.Index()] = f.Name()
	}
	dataS, err := describe(l, data, dataNames)
	if err != nil {
		return nil, err
	}
	memS, err := describe(l, mem, memoryFieldNames)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		Version:     Version,
		PointerSize: l.PointerSize(),
		Runtime:     rtS,
		RuntimeData: dataS,
		Memory:      memS,
	}, nil
}

func describe(l *layout.Layout, st *types.StructType, names []string) (Struct, error) {
	if len(names) != len(st.Fields) {
		return Struct{}, fmt.Errorf("abi: %s has %d fields, want %d", st.Name(), len(st.Fields), len(names))
	}
	sl, err := l.Struct(st)
	if err != nil {
		return Struct{}, fmt.Errorf("abi: %w", err)
	}
	s := Struct{
		Name:   st.Name(),
		Size:   sl.Size,
		Align:  sl.Align,
		Fields: make([]Field, len(st.Fields)),
	}
	for i := range st.Fields {
		s.Fields[i] = Field{
			Name:   names[i],
			Index:  uint32(i),
			Offset: sl.Offsets[i],
			Size:   sl.Sizes[i],
		}
	}
	return s, nil
}

// Marshal encodes d as canonical CBOR.
func (d *Descriptor) Marshal() ([]byte, error) {
	return encMode.Marshal(d)
}

// Unmarshal decodes a descriptor produced by Marshal.
func Unmarshal(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("abi: unmarshal descriptor: %w", err)
	}
	return &d, nil
}

// Checksum returns the SHA-256 of the canonical encoding of d.
func (d *Descriptor) Checksum() (evmtypes.Checksum, error) {
	bz, err := d.Marshal()
	if err != nil {
		return evmtypes.Checksum{}, err
	}
	return sha256.Sum256(bz), nil
}

// Field returns the placement of a RuntimeData field.
func (d *Descriptor) Field(f runtime.RuntimeDataField) Field {
	return d.RuntimeData.Fields[f.Index()]
}

// MemoryOffset returns where the inline memory region starts inside the
// runtime struct.
func (d *Descriptor) MemoryOffset() uint64 {
	return d.Runtime.Fields[runtime.MemIndex].Offset
}

// Compatible returns nil when a host built against other can call code
// compiled against d, and otherwise describes the first difference.
func (d *Descriptor) Compatible(other *Descriptor) error {
	if d.Version != other.Version {
		return fmt.Errorf("%w: version %d, host has %d", ErrIncompatible, d.Version, other.Version)
	}
	if d.PointerSize != other.PointerSize {
		return fmt.Errorf("%w: pointer size %d, host has %d", ErrIncompatible, d.PointerSize, other.PointerSize)
	}
	for _, pair := range [][2]Struct{
		{d.Runtime, other.Runtime},
		{d.RuntimeData, other.RuntimeData},
		{d.Memory, other.Memory},
	} {
		if err := compareStruct(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func compareStruct(want, got Struct) error {
	if want.Name != got.Name {
		return fmt.Errorf("%w: struct %s, host has %s", ErrIncompatible, want.Name, got.Name)
	}
	if want.Size != got.Size || want.Align != got.Align {
		return fmt.Errorf("%w: %s is %d bytes aligned %d, host has %d aligned %d",
			ErrIncompatible, want.Name, want.Size, want.Align, got.Size, got.Align)
	}
	if len(want.Fields) != len(got.Fields) {
		return fmt.Errorf("%w: %s has %d fields, host has %d", ErrIncompatible, want.Name, len(want.Fields), len(got.Fields))
	}
	for i := range want.Fields {
		if want.Fields[i] != got.Fields[i] {
			return fmt.Errorf("%w: %s field %d is %+v, host has %+v",
				ErrIncompatible, want.Name, i, want.Fields[i], got.Fields[i])
		}
	}
	return nil
}
